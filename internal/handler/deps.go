package handler

import (
	"pairchat/internal/app/session"
	"pairchat/internal/configs"
)

type AppDeps struct {
	Coordinator *session.Coordinator
	Config      *configs.AppConfig
}
