// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package landsat

import (
	"fmt"
	"regexp"
	"strings"
)

// Old Landsat IDs come back in the form LC80060522017107LGN00
var preCollectionIDPattern = regexp.MustCompile(`^LC8([0-9]{3})([0-9]{3})[0-9]{7}[A-Z]{3}[0-9]{2}$`)

// Collection 1 product IDs look like LC08_L1TP_139045_20170304_20170316_01_T1
var collection1IDPattern = regexp.MustCompile(`^LC08_(L1TP|L1GT|L1GS)_([0-9]{3})([0-9]{3})_[0-9]{8}_[0-9]{8}_01_(RT|T1|T2)$`)

const (
	preCollectionFolderFormat = "%s/L8/%s/%s/%s/"
	collection1FolderFormat   = "%s/c1/L8/%s/%s/%s/"
)

// IsValidSceneID returns whether an ID is either a pre-collection Landsat 8
// scene ID or a Collection 1 product ID
func IsValidSceneID(sceneID string) bool {
	return IsPreCollectionID(sceneID) || IsCollection1ProductID(sceneID)
}

// IsPreCollectionID returns whether the ID is a pre-collection Landsat 8 scene ID
func IsPreCollectionID(sceneID string) bool {
	return preCollectionIDPattern.MatchString(sceneID)
}

// IsCollection1ProductID returns whether the ID is a Landsat 8 Collection 1 product ID
func IsCollection1ProductID(sceneID string) bool {
	return collection1IDPattern.MatchString(sceneID)
}

// ProcessingLevel returns the L1TP/L1GT/L1GS level embedded in a Collection 1
// product ID, or an empty string for pre-collection IDs
func ProcessingLevel(sceneID string) string {
	if m := collection1IDPattern.FindStringSubmatch(sceneID); m != nil {
		return m[1]
	}
	return ""
}

// PathRow returns the zero-padded WRS-2 path and row of a scene
func PathRow(sceneID string) (path string, row string, err error) {
	if m := collection1IDPattern.FindStringSubmatch(sceneID); m != nil {
		return m[2], m[3], nil
	}
	if m := preCollectionIDPattern.FindStringSubmatch(sceneID); m != nil {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("Invalid scene ID: %s", sceneID)
}

// SceneFolderURL returns the folder under host where the scene's files live
func SceneFolderURL(host string, sceneID string) (string, error) {
	path, row, err := PathRow(sceneID)
	if err != nil {
		return "", err
	}
	host = strings.TrimSuffix(host, "/")
	if IsCollection1ProductID(sceneID) {
		return fmt.Sprintf(collection1FolderFormat, host, path, row, sceneID), nil
	}
	return fmt.Sprintf(preCollectionFolderFormat, host, path, row, sceneID), nil
}
