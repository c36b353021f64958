// Package models contains GORM persistence models for the stock ledger.
// Domain entities carry no ORM tags; each model here maps one table and
// converts to and from its domain entity.
package models
