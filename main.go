package main

import (
	"os"

	"github.com/AngieZuGa/pwa-final/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
