package main

import (
	"github.com/venicegeo/bf-ndvi/catalog"
)

var getDbConnectionFunc catalog.ConnectionProvider = catalog.Connect
