package db

import "gorm.io/gorm"

// ForUpdate returns the row-lock clause for the active dialect. Sqlite has
// no FOR UPDATE; its single-writer model already serializes the transaction.
func ForUpdate(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
