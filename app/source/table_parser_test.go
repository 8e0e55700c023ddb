package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulePage = `<html><body>
<h1>Handball Online</h1>
<h1>Bezirksklasse <a href="/league/5">Männer 5</a> - Saison</h1>
<table>
<thead><tr><th>Datum</th></tr></thead>
<tbody>
<tr>
  <td>Sa. 12.05.24</td><td>18:00 h</td><td>1001</td><td>TSV Alpha</td><td>SG Beta</td>
  <td>Halle 1</td><td>x</td><td>3:1</td><td></td>
</tr>
<tr>
  <td></td><td>20:00</td><td>1002</td><td>HC Gamma</td><td>TV Delta</td>
  <td>Halle 1</td><td>x</td><td><a href="/report/1002">28:25</a></td><td></td>
</tr>
<tr><td colspan="9">Spielfrei: TSV Epsilon</td></tr>
<tr>
  <td>So. 13.05.24</td><td>11:00</td><td>1003</td><td>TSV   Zeta</td><td>SG Eta</td>
  <td>Halle 2</td><td>x</td><td></td><td></td>
</tr>
</tbody>
</table>
</body></html>`

func TestTableParserPlainRows(t *testing.T) {
	candidates, err := NewTableParser().Parse([]byte(schedulePage), "https://example.com/league/5/schedule")
	require.NoError(t, err)
	require.Len(t, candidates, 3, "row with unexpected cell count is skipped")

	assert.Equal(t, Candidate{
		Date: "12.05.24", Time: "18:00", TeamA: "TSV Alpha", TeamB: "SG Beta", Result: "3:1",
	}, candidates[0])

	assert.Equal(t, "12.05.24", candidates[1].Date, "blank date carries forward")
	assert.Equal(t, "28:25", candidates[1].Result)
	assert.True(t, candidates[1].HasReport)
	assert.Equal(t, "https://example.com/report/1002", candidates[1].ReportURL)

	assert.Equal(t, "13.05.24", candidates[2].Date)
	assert.Equal(t, "TSV Zeta", candidates[2].TeamA)
	assert.Empty(t, candidates[2].Result)
	assert.False(t, candidates[2].HasReport)
}

func TestTableParserLeagueColumn(t *testing.T) {
	page := `<table><tbody>
<tr>
  <td>Sa. 12.05.24</td><td>18:00</td><td>Kreisliga A</td><td>1001</td><td>TSV Alpha</td>
  <td>SG Beta</td><td>Halle 1</td><td>x</td><td>3:1
(1:0)</td><td></td>
</tr>
</tbody></table>`

	candidates, err := NewTableParser().Parse([]byte(page), "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "Kreisliga A", c.League)
	assert.Equal(t, "TSV Alpha", c.TeamA)
	assert.Equal(t, "SG Beta", c.TeamB)
	assert.Equal(t, "3:1", c.Result, "only the first line of the result cell counts")
}

func TestTableParserUnknownFormat(t *testing.T) {
	_, err := NewTableParser().Parse([]byte(`<html><body><p>maintenance</p></body></html>`), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestTableParserEmptyTable(t *testing.T) {
	candidates, err := NewTableParser().Parse([]byte(`<table><tbody></tbody></table>`), "")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
