// Package main is the entry point for the docvector service.
package main

import (
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docvector/cmd/docvector/app"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	app.NewApp().Run()
}
