package main

import (
	"fmt"
	"os"

	"github.com/me/ossim/internal/cli"
	"github.com/me/ossim/pkg/model"
)

func main() {
	err := cli.NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "oss:", err)
	}
	os.Exit(model.ExitCode(err))
}
