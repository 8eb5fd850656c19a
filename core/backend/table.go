// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/tablegate/core"
	"github.com/relabs-tech/tablegate/core/access"
	"github.com/relabs-tech/tablegate/core/logger"
	"github.com/relabs-tech/tablegate/core/query"
	"github.com/relabs-tech/tablegate/core/schema"
)

// route names, also used as rate limit keys
const (
	RouteList   = "list"
	RouteGet    = "get"
	RouteCreate = "create"
	RouteEdit   = "edit"
	RouteDelete = "delete"
	RouteFilter = "filter"
)

const maxBodySize = 1 << 20

var permissionMessages = map[core.Operation]string{
	core.OperationRead:   "no read permission",
	core.OperationCreate: "no create permission",
	core.OperationEdit:   "no edit permission",
	core.OperationDelete: "no delete permission",
}

func (b *Backend) handleRoutes(router *mux.Router) {
	nillog := logger.Default()
	nillog.Debugln("tables:", b.registry.Tables())
	nillog.Debugln("  handle table routes: /table/{table_name} GET,POST")
	nillog.Debugln("  handle table routes: /table/{table_name}/{record_id} GET,PUT,DELETE")
	nillog.Debugln("  handle table routes: /table/{table_name}/filter POST")

	tables := router.PathPrefix("/table").Subrouter()
	tables.Use(b.rateLimiter.middleware)
	tables.Use(b.gate.Middleware())

	tables.HandleFunc("/{table_name}", b.list).Methods(http.MethodOptions, http.MethodGet).Name(RouteList)
	tables.HandleFunc("/{table_name}", b.create).Methods(http.MethodOptions, http.MethodPost).Name(RouteCreate)
	tables.HandleFunc("/{table_name}/filter", b.filter).Methods(http.MethodOptions, http.MethodPost).Name(RouteFilter)
	tables.HandleFunc("/{table_name}/{record_id:[0-9]+}", b.get).Methods(http.MethodOptions, http.MethodGet).Name(RouteGet)
	tables.HandleFunc("/{table_name}/{record_id:[0-9]+}", b.edit).Methods(http.MethodOptions, http.MethodPut).Name(RouteEdit)
	tables.HandleFunc("/{table_name}/{record_id:[0-9]+}", b.delete).Methods(http.MethodOptions, http.MethodDelete).Name(RouteDelete)
}

// authorizeTable checks the single permission bit of the operation and then
// resolves the table. It writes the error response and returns nil on failure.
func (b *Backend) authorizeTable(w http.ResponseWriter, r *http.Request, operation core.Operation) *schema.Table {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	auth := access.AuthorizationFromContext(r.Context())
	if !auth.IsAuthorized(operation) {
		rlog.Infof("%s on %s rejected: %s", operation, r.URL.Path, permissionMessages[operation])
		writeError(w, http.StatusForbidden, permissionMessages[operation])
		return nil
	}

	name := mux.Vars(r)["table_name"]
	table, err := b.registry.Table(name)
	if err != nil {
		rlog.Infoln(err)
		writeError(w, http.StatusNotFound, fmt.Sprintf("table %s not found", name))
		return nil
	}
	return table
}

// recordID returns the record_id route parameter. It writes the error response on failure.
func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["record_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return 0, false
	}
	return id, true
}

// schemaCheck selects the JSON schema validation of a request body
type schemaCheck int

const (
	skipSchema schemaCheck = iota
	fullSchema
	partialSchema
)

// readBody decodes and validates the request body against the table. It writes
// the error response on failure.
func (b *Backend) readBody(w http.ResponseWriter, r *http.Request, t *schema.Table, withIdentity bool, check schemaCheck) (*query.Body, bool) {
	rlog := logger.FromContext(r.Context())
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		rlog.WithError(err).Infoln("cannot read request body")
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	body, err := query.ParseBody(t, data, withIdentity)
	if err != nil {
		rlog.WithError(err).Infoln("invalid request body")
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if check != skipSchema {
		if err := b.registry.ValidateBody(t, body.JSON, check == partialSchema); err != nil {
			rlog.WithError(err).Infoln("request body does not follow table schema")
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}
	return body, true
}

// internalError logs the cause and responds with a generic message
func internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger.FromContext(r.Context()).WithError(err).Errorln(message)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationRead)
	if table == nil {
		return
	}
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	records, err := queryRecords(ctx, b.db, table, b.query.SelectAll(table))
	if err != nil {
		internalError(w, r, "cannot list records of "+table.Name, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (b *Backend) get(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationRead)
	if table == nil {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	records, err := queryRecords(ctx, b.db, table, b.query.SelectByID(table, id))
	if err != nil {
		internalError(w, r, "cannot read record of "+table.Name, err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record with ID %d not found in %s", id, table.Name))
		return
	}
	writeJSON(w, http.StatusOK, records[0])
}

func (b *Backend) create(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationCreate)
	if table == nil {
		return
	}
	body, ok := b.readBody(w, r, table, false, fullSchema)
	if !ok {
		return
	}
	rlog := logger.FromContext(r.Context())
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		internalError(w, r, "cannot begin transaction", err)
		return
	}
	defer tx.Rollback()

	insert := b.query.Insert(table, body.Fields)
	var id int64
	if err = tx.QueryRowContext(ctx, insert.SQL, insert.Args...).Scan(&id); err != nil {
		internalError(w, r, "cannot insert record into "+table.Name, err)
		return
	}
	records, err := queryRecords(ctx, tx, table, b.query.SelectByID(table, id))
	if err != nil {
		internalError(w, r, "cannot read back record of "+table.Name, err)
		return
	}
	if len(records) == 0 {
		// the transaction is rolled back, nothing was created
		internalError(w, r, "cannot read back record of "+table.Name,
			fmt.Errorf("no row with %s %d after insert", table.IDColumn, id))
		return
	}
	if err = tx.Commit(); err != nil {
		internalError(w, r, "cannot commit record of "+table.Name, err)
		return
	}
	rlog.Infof("created record %d in %s", id, table.Name)

	record := records[0]
	if payload, err := json.Marshal(record); err == nil {
		b.notify(r.Context(), table.Name, core.OperationCreate, payload)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "record created", Record: &record})
}

func (b *Backend) edit(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationEdit)
	if table == nil {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	body, ok := b.readBody(w, r, table, false, partialSchema)
	if !ok {
		return
	}
	statement, err := b.query.Update(table, id, body.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	res, err := b.db.ExecContext(ctx, statement.SQL, statement.Args...)
	if err != nil {
		internalError(w, r, "cannot update record of "+table.Name, err)
		return
	}
	if b.rowsAffected(r, res, "updated", table, id) {
		if payload, err := json.Marshal(recordFromFields(table, id, body.Fields)); err == nil {
			b.notify(r.Context(), table.Name, core.OperationEdit, payload)
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("record with ID %d updated", id)})
}

// delete does not distinguish between a deleted and a missing record
func (b *Backend) delete(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationDelete)
	if table == nil {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	statement := b.query.Delete(table, id)
	res, err := b.db.ExecContext(ctx, statement.SQL, statement.Args...)
	if err != nil {
		internalError(w, r, "cannot delete record of "+table.Name, err)
		return
	}
	if b.rowsAffected(r, res, "deleted", table, id) {
		if payload, err := json.Marshal(recordFromFields(table, id, nil)); err == nil {
			b.notify(r.Context(), table.Name, core.OperationDelete, payload)
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("record with ID %d deleted", id)})
}

func (b *Backend) filter(w http.ResponseWriter, r *http.Request) {
	table := b.authorizeTable(w, r, core.OperationRead)
	if table == nil {
		return
	}
	body, ok := b.readBody(w, r, table, true, skipSchema)
	if !ok {
		return
	}
	ctx, cancel := b.queryContext(r.Context())
	defer cancel()

	records, err := queryRecords(ctx, b.db, table, b.query.Filter(table, body.Fields))
	if err != nil {
		internalError(w, r, "cannot filter records of "+table.Name, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// rowsAffected logs the number of touched rows and reports whether any row may
// have changed. If the driver cannot tell, it assumes a change.
func (b *Backend) rowsAffected(r *http.Request, res sql.Result, what string, t *schema.Table, id int64) bool {
	rlog := logger.FromContext(r.Context())
	count, err := res.RowsAffected()
	if err != nil {
		rlog.WithError(err).Debugln("rows affected not available")
		return true
	}
	rlog.Debugf("%s %d row(s) with %s %d in %s", what, count, t.IDColumn, id, t.Name)
	return count > 0
}
