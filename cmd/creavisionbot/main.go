package main

import (
	"github.com/badrx15/creavisionbot/internal/account"
	"github.com/badrx15/creavisionbot/internal/authorization"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/completion"
	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/internal/conversation"
	"github.com/badrx15/creavisionbot/internal/ledger"
	"github.com/badrx15/creavisionbot/internal/locks"
	"github.com/badrx15/creavisionbot/internal/metering"
	"github.com/badrx15/creavisionbot/internal/migration"
	"github.com/badrx15/creavisionbot/internal/notify"
	"github.com/badrx15/creavisionbot/internal/observability"
	"github.com/badrx15/creavisionbot/internal/payment"
	"github.com/badrx15/creavisionbot/internal/ratelimit"
	"github.com/badrx15/creavisionbot/internal/server"
	"github.com/badrx15/creavisionbot/internal/sweeper"
	"github.com/badrx15/creavisionbot/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		locks.Module,
		ratelimit.Module,
		notify.Module,

		// Functional Domains
		account.Module,
		authorization.Module,
		ledger.Module,
		conversation.Module,
		completion.Module,
		metering.Module,
		payment.Module,
		sweeper.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
