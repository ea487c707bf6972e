package sqlscan

import (
	"testing"
)

func newTestScanner() *Scanner {
	return NewScanner()
}

func TestExtractJoins(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []JoinDescriptor
	}{
		{
			name: "bare join with aliases",
			sql:  "SELECT o.id, o.total FROM customers c JOIN orders o ON c.id = o.customer_id",
			want: []JoinDescriptor{{
				Type: JoinInner, Table: "orders", Alias: "o",
				OnLeft: "c.id", OnRight: "o.customer_id",
				OnClause: "c.id = o.customer_id",
			}},
		},
		{
			name: "left outer join without alias",
			sql:  "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.a_id WHERE b.x = 1",
			want: []JoinDescriptor{{
				Type: JoinLeft, Table: "b",
				OnLeft: "a.id", OnRight: "b.a_id",
				OnClause: "a.id = b.a_id",
			}},
		},
		{
			name: "two left joins chained",
			sql:  "SELECT * FROM orders o left join order_items i on i.order_id = o.id left join products p on p.id = i.product_id",
			want: []JoinDescriptor{
				{
					Type: JoinLeft, Table: "order_items", Alias: "i",
					OnLeft: "i.order_id", OnRight: "o.id",
					OnClause: "i.order_id = o.id",
				},
				{
					Type: JoinLeft, Table: "products", Alias: "p",
					OnLeft: "p.id", OnRight: "i.product_id",
					OnClause: "p.id = i.product_id",
				},
			},
		},
		{
			name: "as alias and trailing order by",
			sql:  "SELECT * FROM c JOIN orders AS o ON o.customer_id = c.id ORDER BY o.created_at",
			want: []JoinDescriptor{{
				Type: JoinInner, Table: "orders", Alias: "o",
				OnLeft: "o.customer_id", OnRight: "c.id",
				OnClause: "o.customer_id = c.id",
			}},
		},
		{
			name: "right join with compound on condition",
			sql:  "SELECT * FROM a RIGHT JOIN b ON a.x = b.y AND b.flag = 1 GROUP BY a.x",
			want: []JoinDescriptor{{
				Type: JoinRight, Table: "b",
				OnLeft: "a.x", OnRight: "b.y",
				OnClause: "a.x = b.y AND b.flag = 1",
			}},
		},
		{
			name: "join keyword inside string literal ignored",
			sql:  "SELECT * FROM t WHERE note = 'JOIN x ON y'",
			want: nil,
		},
		{
			name: "sub-select join target skipped",
			sql:  "SELECT * FROM a JOIN (SELECT * FROM b) sub ON sub.id = a.id",
			want: nil,
		},
		{
			name: "no joins",
			sql:  "SELECT id FROM users WHERE id = 1",
			want: nil,
		},
	}

	s := newTestScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ExtractJoins(tt.sql)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractJoins() returned %d joins, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("join[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			if n := s.CountJoins(tt.sql); n != len(tt.want) {
				t.Errorf("CountJoins() = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestMainTable(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		wantTable string
		wantAlias string
		wantOK    bool
	}{
		{
			name: "aliased from",
			sql:  "SELECT * FROM orders o WHERE o.id = 1",
			wantTable: "orders", wantAlias: "o", wantOK: true,
		},
		{
			name: "bare from",
			sql:  "SELECT * FROM orders",
			wantTable: "orders", wantOK: true,
		},
		{
			name: "scalar subquery before top-level from",
			sql:  "SELECT (SELECT max(id) FROM audit) AS m FROM orders o",
			wantTable: "orders", wantAlias: "o", wantOK: true,
		},
		{
			name: "delete from",
			sql:  "DELETE FROM sessions WHERE expired_at < now()",
			wantTable: "sessions", wantOK: true,
		},
		{
			name:   "derived table has no name",
			sql:    "SELECT * FROM (SELECT 1) x",
			wantOK: false,
		},
		{
			name:   "no from clause",
			sql:    "SELECT 1",
			wantOK: false,
		},
	}

	s := newTestScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := s.MainTable(tt.sql)
			if ok != tt.wantOK {
				t.Fatalf("MainTable() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ref.Table != tt.wantTable || ref.Alias != tt.wantAlias {
				t.Errorf("MainTable() = %+v, want table=%q alias=%q", ref, tt.wantTable, tt.wantAlias)
			}
		})
	}
}

func TestAliasUsedElsewhere(t *testing.T) {
	s := newTestScanner()

	t.Run("used in select list", func(t *testing.T) {
		sql := "SELECT o.id, o.total FROM customers c JOIN orders o ON c.id = o.customer_id"
		join := s.ExtractJoins(sql)[0]
		if !s.AliasUsedElsewhere(sql, join.Ref(), join.OnClause) {
			t.Error("alias referenced in the select list should count as used")
		}
	})

	t.Run("only in its own on clause", func(t *testing.T) {
		sql := "SELECT c.name FROM customers c JOIN orders o ON o.customer_id = c.id"
		join := s.ExtractJoins(sql)[0]
		if s.AliasUsedElsewhere(sql, join.Ref(), join.OnClause) {
			t.Error("alias appearing only in its own ON clause is not used")
		}
	})

	t.Run("used by a later join's on clause", func(t *testing.T) {
		sql := "SELECT c.name FROM customers c JOIN orders o ON o.customer_id = c.id JOIN items i ON i.order_id = o.id"
		join := s.ExtractJoins(sql)[0]
		if !s.AliasUsedElsewhere(sql, join.Ref(), join.OnClause) {
			t.Error("alias referenced by another join's ON clause should count as used")
		}
	})

	t.Run("unaliased join searched by table name", func(t *testing.T) {
		sql := "SELECT orders.total FROM customers c JOIN orders ON orders.customer_id = c.id"
		join := s.ExtractJoins(sql)[0]
		if join.Ref() != "orders" {
			t.Fatalf("Ref() = %q, want table name fallback", join.Ref())
		}
		if !s.AliasUsedElsewhere(sql, join.Ref(), join.OnClause) {
			t.Error("table-name reference in select list should count as used")
		}
	})

	t.Run("prefix of longer identifier does not match", func(t *testing.T) {
		sql := "SELECT foo.bar FROM t JOIN x o ON o.id = t.x_id"
		if s.AliasUsedElsewhere(sql, "o", s.ExtractJoins(sql)[0].OnClause) {
			t.Error("alias must match as a whole word, not a suffix of foo")
		}
	})
}

func TestQuickFlags(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want Flags
	}{
		{
			name: "plain select",
			sql:  "SELECT id FROM users",
			want: Flags{IsSelect: true},
		},
		{
			name: "everything at once",
			sql:  "SELECT * FROM a JOIN b ON a.id = b.a_id WHERE a.x = 1 GROUP BY a.y ORDER BY a.z LIMIT 10 OFFSET 20",
			want: Flags{IsSelect: true, HasJoin: true, HasWhere: true, HasGroupBy: true, HasOrderBy: true, HasLimit: true, HasOffset: true},
		},
		{
			name: "update is not a select",
			sql:  "UPDATE users SET name = 'x' WHERE id = 1",
			want: Flags{HasWhere: true},
		},
		{
			name: "cte counts as select",
			sql:  "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
			want: Flags{IsSelect: true},
		},
		{
			name: "keywords inside literals do not count",
			sql:  "SELECT id FROM t WHERE note = 'ORDER BY LIMIT JOIN'",
			want: Flags{IsSelect: true, HasWhere: true},
		},
		{
			name: "fetch first counts as limit",
			sql:  "SELECT id FROM t ORDER BY id FETCH FIRST 5 ROWS ONLY",
			want: Flags{IsSelect: true, HasOrderBy: true, HasLimit: true},
		},
	}

	s := newTestScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.QuickFlags(tt.sql); got != tt.want {
				t.Errorf("QuickFlags(%q) = %+v, want %+v", tt.sql, got, tt.want)
			}
		})
	}
}
