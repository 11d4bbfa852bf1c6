package main

import (
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/internal/app"
)

func main() {
	fx.New(app.CreateApp()).Run()
}
