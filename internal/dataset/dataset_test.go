package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visascout/internal/match"
	"visascout/pkg/utils"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sponsors.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleCSV = `company_name,company_tier,h1b,h1b1_chile,h1b1_singapore,e3_australian,green_card,contact_1,contact_1_title,email_1,contact_1_phone
Acme Inc.,large,12,0,0,1,3,Dana Reyes,Immigration Lead,dana@acme.example,+1 555 0100
Acme LLC,small,2,0,0,0,0,,,,
Globex Corp,mid,0,0,0,0,0,,,,
nan,small,5,0,0,0,0,,,,
`

func TestLoad(t *testing.T) {
	table, err := Load(writeCSV(t, sampleCSV))
	require.NoError(t, err)

	// "Acme Inc." and "Acme LLC" normalize to the same company; the
	// stronger sponsor wins. The placeholder row is dropped.
	assert.Equal(t, 2, table.Rows)

	row, ok := table.Lookup("acme")
	require.True(t, ok)
	assert.Equal(t, "Acme Inc.", row.CompanyName)
	assert.Equal(t, 12, row.Counts[match.VisaH1B])
	assert.Equal(t, 16, row.TotalVisas)
	require.Len(t, row.Contacts, 1)
	assert.Equal(t, "dana@acme.example", row.Contacts[0].Email)

	row, ok = table.Lookup("globex")
	require.True(t, ok)
	assert.Zero(t, row.TotalVisas)
}

func TestLoadAlternateHeaders(t *testing.T) {
	table, err := Load(writeCSV(t, "EMPLOYER,size,H-1B,H-1B1 Chile,H-1B1 Singapore,E-3 Australian,Green Card\nInitech Ltd,small,3,0,0,0,x\n"))
	require.NoError(t, err)

	row, ok := table.Lookup("initech")
	require.True(t, ok)
	assert.Equal(t, 3, row.Counts[match.VisaH1B])
	// Malformed numeric cells coerce to zero rather than failing the load.
	assert.Equal(t, 0, row.Counts[match.VisaGreenCard])
}

func TestLoadMissingColumns(t *testing.T) {
	_, err := Load(writeCSV(t, "company_name,h1b\nAcme,1\n"))
	require.Error(t, err)

	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "missing required columns")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)

	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "not found")
}

func TestStoreCachesAndInvalidates(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	store := NewStore()

	first, err := store.Get(path)
	require.NoError(t, err)
	second, err := store.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, second, "second load is served from the memo")

	require.NoError(t, os.WriteFile(path, []byte("company_name,company_tier,h1b,h1b1_chile,h1b1_singapore,e3_australian,green_card\nNewCo,small,1,0,0,0,0\n"), 0o644))
	store.Invalidate(path)

	third, err := store.Get(path)
	require.NoError(t, err)
	_, ok := third.Lookup("newco")
	assert.True(t, ok)
}

func TestFreshness(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	store := NewStore()
	_, err := store.Get(path)
	require.NoError(t, err)

	freshness := store.Freshness(path, 120)
	assert.False(t, freshness.Stale)
	assert.Equal(t, 2, freshness.Rows)
	assert.NotEmpty(t, freshness.ModifiedAt)

	missing := store.Freshness(filepath.Join(t.TempDir(), "absent.csv"), 120)
	assert.True(t, missing.Stale)
}
