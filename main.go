package main

import "migrator/internal/app"

func main() {
	app.Execute()
}
