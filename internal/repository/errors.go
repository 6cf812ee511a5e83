// Package repository is the MySQL implementation of the remote store.
// Every method classifies driver failures into apperr kinds so callers can
// tell a lost connection from a rejected write, and publishes a change
// notification after each successful write.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
)

// MySQL server error numbers the repository distinguishes.
const (
	errDupEntry          = 1062
	errRowIsReferenced   = 1451
	errNoReferencedRow   = 1452
	errNoReferencedRowV1 = 1216
)

// classify maps err onto an apperr kind.  Errors that are already
// classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, op, err)
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return &apperr.Error{Kind: apperr.KindRemoteRejected, Op: op, Msg: "record already exists", Err: err}
		case errNoReferencedRow, errNoReferencedRowV1:
			return &apperr.Error{Kind: apperr.KindVenueNotFound, Op: op, Msg: "venue no longer exists", Err: err}
		case errRowIsReferenced:
			return &apperr.Error{Kind: apperr.KindRemoteRejected, Op: op, Msg: "record is still referenced", Err: err}
		}
		return apperr.Wrap(apperr.KindRemoteRejected, op, err)
	}

	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &ne) {
		return apperr.Wrap(apperr.KindNetworkUnavailable, op, err)
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}
