package main

import (
	"fmt"
	"os"

	"github.com/ecmps/submission-engine/pkg/submission"
)

func main() {
	if err := submission.Command().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
