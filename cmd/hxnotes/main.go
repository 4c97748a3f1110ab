package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

// @title hxnotes API
// @version 1.0
// @BasePath /
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
