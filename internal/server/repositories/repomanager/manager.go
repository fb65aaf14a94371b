// Package repomanager vends repositories bound to a database handle and runs
// the schema migrations they depend on.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/contactsync/internal/dbx"
	"github.com/dmitrijs2005/contactsync/internal/server/repositories/contacts"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Contacts(db dbx.DBTX) contacts.Repository
}
