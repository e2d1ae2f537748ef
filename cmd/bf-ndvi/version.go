package main

import (
	"fmt"

	cli "gopkg.in/urfave/cli.v1"
)

func versionAction(c *cli.Context) {
	fmt.Fprintln(c.App.Writer, "bf-ndvi version "+version)
}
