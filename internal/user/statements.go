package user

import "github.com/gandaldf/sqlt"

// statements holds the SQL of both DAOs in one placeholder dialect.
type statements struct {
	insert        string
	insertReturns bool // insert yields the new id as a row
	update        string
	findByID      string
	findByAccount string
	findAll       string
	logHistory    string
	findHistory   string
}

const userColumns = "id, account, password, email"

var mysqlStatements = statements{
	insert:        "INSERT INTO users (account, password, email) VALUES (?, ?, ?)",
	update:        "UPDATE users SET account = ?, password = ?, email = ? WHERE id = ?",
	findByID:      "SELECT " + userColumns + " FROM users WHERE id = ?",
	findByAccount: "SELECT " + userColumns + " FROM users WHERE account = ?",
	findAll:       "SELECT " + userColumns + " FROM users ORDER BY id",
	logHistory:    "INSERT INTO user_history (user_id, account, password, email, created_at, created_by) VALUES (?, ?, ?, ?, ?, ?)",
	findHistory:   "SELECT id, user_id, account, password, email, created_at, created_by FROM user_history WHERE user_id = ? ORDER BY id",
}

var postgresStatements = statements{
	insert:        "INSERT INTO users (account, password, email) VALUES ($1, $2, $3) RETURNING id",
	insertReturns: true,
	update:        "UPDATE users SET account = $1, password = $2, email = $3 WHERE id = $4",
	findByID:      "SELECT " + userColumns + " FROM users WHERE id = $1",
	findByAccount: "SELECT " + userColumns + " FROM users WHERE account = $1",
	findAll:       "SELECT " + userColumns + " FROM users ORDER BY id",
	logHistory:    "INSERT INTO user_history (user_id, account, password, email, created_at, created_by) VALUES ($1, $2, $3, $4, $5, $6)",
	findHistory:   "SELECT id, user_id, account, password, email, created_at, created_by FROM user_history WHERE user_id = $1 ORDER BY id",
}

func statementsFor(d sqlt.Dialect) statements {
	if d == sqlt.Postgres {
		return postgresStatements
	}
	return mysqlStatements
}
