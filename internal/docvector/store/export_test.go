package store

import "gorm.io/gorm"

// SearchStatementForTest renders the search query without executing it.
func SearchStatementForTest(db *gorm.DB, q SearchQuery) *gorm.Statement {
	var rows []searchRow
	return searchStatement(db, q).Find(&rows).Statement
}
