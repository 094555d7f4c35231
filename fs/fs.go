// Package appfs bundles the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations/*.sql fixtures/*.json templates/email/*
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	LegendFixtures    = "fixtures/legends.json"
	DayFixtures       = "fixtures/calendar_days.json"
	EmailTemplatesDir = "templates/email"
)
