package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

const projectsCSV = `id,project_name,client_name,status,start_date,end_date,estimated_cost,actual_cost,net_gain,story_points
P1,erp-java-core,Acme,completed,2024-01-01,2024-05-30,300000,280000,600000,120
P2,crm-go-api,Globex,in-progress,2024-03-01,,200000,150000,90000,
`

const spanishQualityCSV = `nombre_proyecto,severidad,cantidad_defectos_encontrados,fecha_deteccion,fecha_resolucion
erp-java-core,Crítica,2,2024-02-01,2024-02-03
erp-java-core,Baja,7,2024-02-01,
`

func TestReadProjects(t *testing.T) {
	projects, err := ReadProjects(strings.NewReader(projectsCSV))
	require.NoError(t, err)
	require.Len(t, projects, 2)

	p := projects[0]
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Equal(t, 150, p.DurationDays)
	assert.Equal(t, 120, p.StoryPoints)
	assert.Equal(t, 600000.0, p.NetGain)

	assert.Equal(t, models.StatusInProgress, projects[1].Status)
	assert.True(t, projects[1].EndDate.IsZero())
	assert.Equal(t, 0, projects[1].DurationDays)
}

func TestReadQualitySpanishHeaders(t *testing.T) {
	records, err := ReadQuality(strings.NewReader(spanishQualityCSV))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.SeverityCritical, records[0].Severity)
	require.NotNil(t, records[0].ResolutionDate)
	days, ok := records[0].ResolutionDays()
	assert.True(t, ok)
	assert.Equal(t, 2.0, days)
	assert.Nil(t, records[1].ResolutionDate)

	// IDs derived from row content are stable across reads.
	again, err := ReadQuality(strings.NewReader(spanishQualityCSV))
	require.NoError(t, err)
	assert.Equal(t, records[0].ID, again[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestReadRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		read func() error
	}{
		{"unknown status", func() error {
			_, err := ReadProjects(strings.NewReader("project_name,status\nx,paused\n"))
			return err
		}},
		{"missing column", func() error {
			_, err := ReadQuality(strings.NewReader("project_name,severity\nx,low\n"))
			return err
		}},
		{"bad number", func() error {
			_, err := ReadQuality(strings.NewReader("project_name,severity,defect_count\nx,low,many\n"))
			return err
		}},
		{"bad date", func() error {
			_, err := ReadProjects(strings.NewReader("project_name,status,start_date\nx,planned,yesterday\n"))
			return err
		}},
		{"empty", func() error {
			_, err := ReadProjects(strings.NewReader(""))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.read(), ErrInvalidRow)
		})
	}
}

type memStore struct {
	projects []models.Project
	quality  []models.QualityRecord
}

func (m *memStore) UpsertProjects(_ context.Context, p []models.Project) error {
	m.projects = append(m.projects, p...)
	return nil
}

func (m *memStore) UpsertQualityRecords(_ context.Context, q []models.QualityRecord) error {
	m.quality = append(m.quality, q...)
	return nil
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	pp := filepath.Join(dir, "projects.csv")
	qp := filepath.Join(dir, "quality.csv")
	require.NoError(t, os.WriteFile(pp, []byte(projectsCSV), 0o600))
	require.NoError(t, os.WriteFile(qp, []byte(spanishQualityCSV), 0o600))

	store := &memStore{}
	sum, err := NewProcessor(store).ImportFiles(context.Background(), pp, qp)
	require.NoError(t, err)
	assert.Equal(t, Summary{Projects: 2, QualityRecords: 2}, sum)
	assert.Len(t, store.projects, 2)
	assert.Len(t, store.quality, 2)

	_, err = NewProcessor(store).ImportFiles(context.Background(), filepath.Join(dir, "missing.csv"), "")
	assert.Error(t, err)
}
