// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package backend implements the table gateway

The gateway exposes a configured set of SQL tables through a REST API. Every
request carries a client secret, which is looked up in an authorization table
and yields four permissions: read, create, edit and delete.

# Configuration

Tables are registered in a JSON file. Only registered tables and columns are
reachable, their names are the only identifiers that ever end up in SQL
statements. All values travel as bound parameters.

Example:

	{
		"credentials": {
			"table": "oauth",
			"secret_column": "client_secret"
		},
		"tables": [
			{
				"table": "customers",
				"columns": [
					{"name": "ID", "type": "integer"},
					{"name": "name", "type": "string"},
					{"name": "active", "type": "boolean"}
				],
				"schema": {
					"type": "object",
					"properties": {"name": {"type": "string", "minLength": 1}},
					"required": ["name"]
				}
			}
		]
	}

The identity column defaults to "ID" and must be an integer. The optional
schema is a JSON schema which create bodies must satisfy. Edit bodies carry
only the columns to change, they are validated without the top level
"required" list.

This configuration creates the following REST routes:

	GET /table/customers                - read
	GET /table/customers/{record_id}    - read
	POST /table/customers/filter        - read
	POST /table/customers               - create
	PUT /table/customers/{record_id}    - edit
	DELETE /table/customers/{record_id} - delete

Records are JSON objects whose keys follow the column order of the table:

	curl -H "client-secret: xyz" http://localhost:5000/table/customers/1
	{"ID":1,"name":"Ada","active":true}

Create returns the stored record, as read back in the same transaction:

	curl -H "client-secret: xyz" http://localhost:5000/table/customers -d'{"name":"Grace"}'
	{"message":"record created","record":{"ID":2,"name":"Grace","active":false}}

Filter takes a JSON object of column values and returns all records matching every one of them:

	curl -H "client-secret: xyz" http://localhost:5000/table/customers/filter -d'{"active":true}'
	[{"ID":1,"name":"Ada","active":true}]

Edit and delete answer with a message only and do not tell whether the record existed.

# Authorization

A missing or unknown secret, a secret matching several rows and an unreachable
credential table all result in no permissions at all. The credential lookup is
bounded by the query timeout. The client only sees a 403, the log tells the
cases apart. The permission is checked before the table name is resolved, so
clients without permission cannot discover tables.

# Rate Limits

Requests are limited per client IP and route, see RateLimitConfiguration.
Exceeding the limit yields 429 with a Retry-After header.

# Notifications

The backend supports change notifications through the Notifier interface specified at construction time.
Notify is called after every committed create, edit and delete with the affected record. An edit or
delete which touched no row is not notified.
*/
package backend
