package main

import (
	"log"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/venicegeo/bf-ndvi/catalog"
	"github.com/venicegeo/bf-ndvi/util"
)

func migrateDatabaseAction(*cli.Context) {
	database, err := getDbConnectionFunc(&util.BasicLogContext{})
	if err != nil {
		log.Fatal("Could not open database connection: ", err)
	}
	defer database.Close()

	if err = catalog.Migrate(database); err != nil {
		log.Fatal("Could not migrate database: ", err)
	}
}
