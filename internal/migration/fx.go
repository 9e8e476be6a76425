package migration

import (
	auditdomain "github.com/groupcart/groupcart/internal/audit/domain"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	"github.com/groupcart/groupcart/internal/config"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql development setups get the gorm-derived
		// schema; production runs Postgres with the versioned SQL.
		return conn.AutoMigrate(
			&campaigndomain.Campaign{},
			&bracketdomain.DiscountBracket{},
			&pledgedomain.Pledge{},
			&invoicedomain.Invoice{},
			&paymentdomain.Payment{},
			&paymentdomain.WebhookEvent{},
			&orderdomain.Order{},
			&notificationdomain.OutboxMessage{},
			&auditdomain.AuditLog{},
		)
	}),
)
