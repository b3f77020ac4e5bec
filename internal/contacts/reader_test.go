package contacts

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "abandoned_cart.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_ReadsRecordsInOrder(t *testing.T) {
	p := writeCSV(t, "name,phone,items,total,reason,language\n"+
		"Rahul Sharma,+917499902809,\"Headphones, Speaker\",4098,price,hi\n"+
		"Asha,+14155550100,Lamp,25.5,,\n")

	recs, err := Load(p, Options{DefaultLanguage: "en"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 1, recs[0].Row)
	assert.Equal(t, "Rahul Sharma", recs[0].Name)
	assert.Equal(t, "Headphones, Speaker", recs[0].CartItems)
	assert.Equal(t, "hi", recs[0].Language)
	assert.True(t, recs[0].Valid())

	assert.Equal(t, 2, recs[1].Row)
	assert.Equal(t, DefaultReason, recs[1].Reason)
	assert.Equal(t, "en", recs[1].Language)
}

func TestLoad_MissingRequiredColumns(t *testing.T) {
	p := writeCSV(t, "customer,items\nRahul,Speaker\n")

	_, err := Load(p, Options{})
	var sfe *SourceFormatError
	require.True(t, errors.As(err, &sfe), "expected SourceFormatError, got %v", err)
	assert.Equal(t, []string{"name", "phone"}, sfe.Missing)
}

func TestOpen_UnreadableFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	var sfe *SourceFormatError
	require.ErrorAs(t, err, &sfe)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestOpen_EmptyFile(t *testing.T) {
	_, err := Open(writeCSV(t, ""), Options{})
	var sfe *SourceFormatError
	require.ErrorAs(t, err, &sfe)
}

func TestNext_TagsInvalidPhonesInsteadOfDropping(t *testing.T) {
	p := writeCSV(t, "name,phone\n"+
		"No Plus,917499902809\n"+
		"Empty,\n"+
		",+15550001111\n"+
		"Spaces,  +15550002222  \n")

	recs, err := Load(p, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, SkipPhonePrefix, recs[0].Invalid)
	assert.Equal(t, SkipPhoneMissing, recs[1].Invalid)
	assert.Equal(t, SkipNameMissing, recs[2].Invalid)
	assert.True(t, recs[3].Valid())
	assert.Equal(t, "+15550002222", recs[3].Phone)
}

func TestNext_AliasesAndListItems(t *testing.T) {
	p := writeCSV(t, "Customer_Name,Number,Cart_Items,Cart_Value,Abandoned_Date\n"+
		"Rahul,+917499902809,\"[\"\"Wireless Headphones\"\",\"\"Bluetooth Speaker\"\"]\",4098,2026-10-01\n")

	r, err := Open(p, Options{})
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Wireless Headphones, Bluetooth Speaker", rec.CartItems)
	assert.Equal(t, "4098", rec.CartTotal)
	assert.Equal(t, "2026-10-01", rec.AbandonedDate)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNext_ShortRowsArePadded(t *testing.T) {
	p := writeCSV(t, "name,phone,items,total\nRahul,+917499902809\n")
	recs, err := Load(p, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].CartItems)
	assert.True(t, recs[0].Valid())
}
