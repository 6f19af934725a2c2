package db

import _ "embed"

//go:embed schema.sql
var Schema string

const DateLayout = "2006-01-02"
