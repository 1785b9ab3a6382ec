package rdbms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/IBM/nzgo/v12"
	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
)

var reNetezzaDsn = regexp.MustCompile(`^netezza://.+?/.+?@//.+:[0-9]+/.+$`)

// newNetezzaConnection opens the Netezza database connection specified in dsn.
func newNetezzaConnection(ctx context.Context, log logger.Logger, dsn string) (*Connection, error) {
	connStr, err := GetNzgoConnectionString(dsn)
	if err != nil {
		return nil, err
	}
	conn := &Connection{DbType: constants.ConnectionTypeNetezza}
	if err = openAndPing(ctx, conn, "nzgo", connStr); err != nil {
		return nil, err
	}
	log.Info("Successful database connection to Netezza.")
	return conn, nil
}

// GetNzgoConnectionString parses a DSN of the form netezza://user/password@//host:port/dbname[?k=v&...]
// and converts it to the space separated key=value format required by the nzgo library.
func GetNzgoConnectionString(dsn string) (string, error) {
	if !reNetezzaDsn.MatchString(dsn) {
		return "", errors.New("unsupported Netezza DSN format")
	}
	dsn = strings.TrimPrefix(dsn, constants.ConnectionTypeNetezza+"://")
	userPwd, theRest := helper.SplitRight(dsn, `@`)
	user, pass := helper.Split(userPwd, `/`)
	hostPort, dbNameParams := helper.Split(strings.TrimLeft(theRest, "/"), `/`)
	host, port := helper.SplitRight(hostPort, `:`)
	dbName, params := helper.Split(dbNameParams, `?`)
	params = strings.Replace(params, "&", " ", -1) // use space as the separator.
	connStr := strings.TrimSpace(fmt.Sprintf("user=%s password='%s' host=%s port=%s dbname=%s logLevel=Off %s", user, pass, host, port, dbName, params))
	return connStr, nil
}
