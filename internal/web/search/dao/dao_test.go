package dao

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Laisky/capability-search/library/log"
)

func newMockIndex(t *testing.T) (*Index, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}))
	require.NoError(t, err)

	return &Index{db: gdb, logger: log.Logger.Named("dao_test")}, mock
}

func TestSearchSkillsPushesActiveFilterIntoQuery(t *testing.T) {
	t.Parallel()

	index, mock := newMockIndex(t)
	queryVec := pgvector.NewVector([]float32{0.1, 0.2})

	pattern := regexp.MustCompile(`SELECT skill_id, name, description, tool_count,[\s\S]+1 - \(embedding <=> \$[0-9]+\) AS score[\s\S]+WHERE is_active = TRUE[\s\S]+ORDER BY embedding <=> \$[0-9]+ ASC[\s\S]+LIMIT \$[0-9]+`)
	rows := sqlmock.NewRows([]string{"skill_id", "name", "description", "tool_count", "score"}).
		AddRow("calendar-management", "Calendar Management", "calendar skills", 3, 0.85).
		AddRow("mail", "Mail", "email skills", 2, 0.61)

	mock.ExpectQuery(pattern.String()).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	hits, err := index.SearchSkills(context.Background(), queryVec, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "calendar-management", hits[0].SkillID)
	require.Equal(t, 0.85, hits[0].Score)
	require.Equal(t, 3, hits[0].ToolCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchSkillsClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	index, mock := newMockIndex(t)

	rows := sqlmock.NewRows([]string{"skill_id", "name", "description", "tool_count", "score"}).
		AddRow("too-high", "Too High", "", 0, 1.2).
		AddRow("too-low", "Too Low", "", 0, -0.2)

	mock.ExpectQuery(`SELECT skill_id`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	hits, err := index.SearchSkills(context.Background(), pgvector.NewVector([]float32{1}), 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, 1.0, hits[0].Score)
	require.Equal(t, 0.0, hits[1].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchItemsAppliesSkillAndTypeFilters(t *testing.T) {
	t.Parallel()

	index, mock := newMockIndex(t)
	queryVec := pgvector.NewVector([]float32{0.1, 0.2})

	pattern := regexp.MustCompile(`SELECT id, item_id, name, description, type, skill_ids,[\s\S]+WHERE is_active = TRUE[\s\S]+jsonb_exists_any\(skill_ids, \$[0-9]+\)[\s\S]+type = \$[0-9]+[\s\S]+ORDER BY embedding <=> \$[0-9]+ ASC[\s\S]+LIMIT \$[0-9]+`)
	rows := sqlmock.NewRows([]string{"id", "item_id", "name", "description", "type", "skill_ids", "score"}).
		AddRow(int64(7), "create_calendar_event", "Create Calendar Event", "create events", "tool",
			datatypes.JSON([]byte(`["calendar-management"]`)), 0.9)

	mock.ExpectQuery(pattern.String()).
		WithArgs(sqlmock.AnyArg(), `{"calendar-management"}`, "tool", sqlmock.AnyArg(), 16).
		WillReturnRows(rows)

	hits, err := index.SearchItems(context.Background(), queryVec, ItemFilter{
		SkillIDs: []string{"calendar-management"},
		ItemType: "tool",
	}, 16)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(7), hits[0].ID)
	require.Equal(t, "create_calendar_event", hits[0].ItemID)
	require.Equal(t, []string{"calendar-management"}, hits[0].SkillIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchItemsWithoutFiltersOmitsConditions(t *testing.T) {
	t.Parallel()

	index, mock := newMockIndex(t)

	pattern := regexp.MustCompile(`WHERE is_active = TRUE[\s\S]+ORDER BY embedding <=> \$[0-9]+ ASC`)
	rows := sqlmock.NewRows([]string{"id", "item_id", "name", "description", "type", "skill_ids", "score"}).
		AddRow(int64(1), "orphan_tool", "Orphan", "", "tool", datatypes.JSON([]byte(`[]`)), 0.95)

	mock.ExpectQuery(pattern.String()).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 16).
		WillReturnRows(rows)

	hits, err := index.SearchItems(context.Background(), pgvector.NewVector([]float32{1}), ItemFilter{}, 16)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Empty(t, hits[0].SkillIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSchemasBatchesUniqueIDs(t *testing.T) {
	t.Parallel()

	index, mock := newMockIndex(t)

	pattern := regexp.MustCompile(`SELECT item_id, input_schema, output_schema, annotations[\s\S]+WHERE item_id IN \(\$[0-9]+,\$[0-9]+\)`)
	rows := sqlmock.NewRows([]string{"item_id", "input_schema", "output_schema", "annotations"}).
		AddRow(int64(7), datatypes.JSON([]byte(`{"type":"object"}`)), nil, nil)

	mock.ExpectQuery(pattern.String()).
		WithArgs(int64(7), int64(9)).
		WillReturnRows(rows)

	schemaRows, err := index.LoadSchemas(context.Background(), []int64{7, 9})
	require.NoError(t, err)
	require.Len(t, schemaRows, 1)
	require.Equal(t, int64(7), schemaRows[0].ItemID)
	require.JSONEq(t, `{"type":"object"}`, string(schemaRows[0].InputSchema))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSchemasEmptyInputSkipsQuery(t *testing.T) {
	t.Parallel()

	index, _ := newMockIndex(t)

	schemaRows, err := index.LoadSchemas(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, schemaRows)
}

func TestSkillIDArrayLiteral(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"a","b"}`, skillIDArray([]string{"a", "b"}))
	require.Equal(t, `{"calendar-management"}`, skillIDArray([]string{"calendar-management"}))
}
