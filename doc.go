// Package sqlt is a minimal execution template over database/sql. It runs the SQL you already write with positional parameters, borrows and returns pool connections for you (reusing the connection of an active transaction carried in the context), maps rows into your types through small RowMapper values, and turns driver failures into four error kinds you can branch on: Binding, Execution, Mapping and ConnectionUnavailable.

package sqlt
