package bot

import (
	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/engine"
)

type ServiceBot interface {
	GetBot() *api.BotAPI
}

type ServiceDB interface {
	GetDB() db.Client
}

type ServiceEngine interface {
	GetEngine() *engine.Engine
}

type Service interface {
	ServiceBot
	ServiceDB
	ServiceEngine
}

type service struct {
	bot    *api.BotAPI
	db     db.Client
	engine *engine.Engine
}

func NewService(bot *api.BotAPI, db db.Client, engine *engine.Engine) *service {
	return &service{
		bot:    bot,
		db:     db,
		engine: engine,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetEngine() *engine.Engine {
	return s.engine
}
