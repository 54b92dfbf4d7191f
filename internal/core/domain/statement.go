package domain

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// RedactedStatement replaces statements that cannot be normalized.
const RedactedStatement = "<not logged>"

// SplitStatements splits a SQL script into individual statements using the
// server's own parser.
func SplitStatements(script string) ([]string, error) {
	stmts, err := pg_query.SplitWithParser(script, true)
	if err != nil {
		return nil, fmt.Errorf("splitting script: %w", err)
	}
	out := stmts[:0]
	for _, s := range stmts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// RedactStatement replaces constants in sql with $n placeholders.
func RedactStatement(sql string) string {
	normalized, err := pg_query.Normalize(sql)
	if err != nil {
		return RedactedStatement
	}
	return normalized
}

// CommandTag names the command a statement runs, the way the server shows it
// in the process title.
func CommandTag(sql string) string {
	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return firstWord(sql)
	}

	switch n := tree.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return "SELECT"
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_MergeStmt:
		return "MERGE"
	case *pg_query.Node_CreateStmt:
		return "CREATE TABLE"
	case *pg_query.Node_DropStmt:
		return "DROP"
	case *pg_query.Node_DoStmt:
		return "DO"
	case *pg_query.Node_CopyStmt:
		return "COPY"
	case *pg_query.Node_ExplainStmt:
		return "EXPLAIN"
	case *pg_query.Node_VariableSetStmt:
		return "SET"
	case *pg_query.Node_GrantStmt:
		if n.GrantStmt.IsGrant {
			return "GRANT"
		}
		return "REVOKE"
	case *pg_query.Node_TransactionStmt:
		return transactionTag(n.TransactionStmt.Kind)
	default:
		return firstWord(sql)
	}
}

func transactionTag(kind pg_query.TransactionStmtKind) string {
	switch kind {
	case pg_query.TransactionStmtKind_TRANS_STMT_BEGIN, pg_query.TransactionStmtKind_TRANS_STMT_START:
		return "BEGIN"
	case pg_query.TransactionStmtKind_TRANS_STMT_COMMIT:
		return "COMMIT"
	case pg_query.TransactionStmtKind_TRANS_STMT_ROLLBACK:
		return "ROLLBACK"
	default:
		return "TRANSACTION"
	}
}

func firstWord(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
