package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/groupcart/groupcart/internal/audit"
	"github.com/groupcart/groupcart/internal/bracket"
	"github.com/groupcart/groupcart/internal/campaign"
	"github.com/groupcart/groupcart/internal/clock"
	"github.com/groupcart/groupcart/internal/config"
	"github.com/groupcart/groupcart/internal/invoice"
	"github.com/groupcart/groupcart/internal/migration"
	"github.com/groupcart/groupcart/internal/notification"
	"github.com/groupcart/groupcart/internal/observability"
	"github.com/groupcart/groupcart/internal/order"
	"github.com/groupcart/groupcart/internal/payment"
	"github.com/groupcart/groupcart/internal/pledge"
	"github.com/groupcart/groupcart/internal/scheduler"
	"github.com/groupcart/groupcart/internal/server"
	"github.com/groupcart/groupcart/pkg/db"
	"github.com/groupcart/groupcart/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		audit.Module,
		notification.Module,
		campaign.Module,
		bracket.Module,
		pledge.Module,
		invoice.Module,
		payment.Module,
		order.Module,

		// Background sweep and HTTP surface
		scheduler.Module,
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
