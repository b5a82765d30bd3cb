package main

import (
	"os"

	"github.com/nczempin/httpconn/cmd/httpconn/app"
)

func main() {
	if err := app.NewHTTPConnCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
