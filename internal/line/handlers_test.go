package line

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(mock pgxmock.PgxPoolIface) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/lines"), NewService(mock))
	return app
}

func TestLineHandlersCreateGetApprove(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO lines`).
		WithArgs(pgxmock.AnyArg(), "Route 5", "", StatusPending, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	app := newTestApp(mock)

	body, _ := json.Marshal(Line{Name: "Route 5"})
	req := httptest.NewRequest(http.MethodPost, "/lines/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %d", err, resp.StatusCode)
	}

	var created Line
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected pending line, got %s", created.Status)
	}

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs(created.ID).
		WillReturnRows(lineRows(created.ID, "Route 5", StatusPending, nil, nil))

	req = httptest.NewRequest(http.MethodGet, "/lines/"+created.ID, nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}

	mock.ExpectExec(`UPDATE lines SET status='approved'`).
		WithArgs(created.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT id, name`).
		WithArgs(created.ID).
		WillReturnRows(lineRows(created.ID, "Route 5", StatusApproved, nil, nil))

	req = httptest.NewRequest(http.MethodPost, "/lines/"+created.ID+"/approve", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status: %v", err)
	}
}

func TestLineHandlersBadRequest(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(http.MethodPost, "/lines/", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing name")
	}
}

func TestLineHandlersNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	app := newTestApp(mock)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lines/missing", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v %d", err, resp.StatusCode)
	}
}

// Merging A into B moves B nothing but marks A; a second merge of A must
// fail and name A's existing target.
func TestLineHandlersMergeThenAlreadyMerged(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, merged_into_id FROM lines`).
		WithArgs("line-a").
		WillReturnRows(pgxmock.NewRows([]string{"status", "merged_into_id"}).AddRow("pending", nil))
	mock.ExpectQuery(`SELECT status, merged_into_id FROM lines`).
		WithArgs("line-b").
		WillReturnRows(pgxmock.NewRows([]string{"status", "merged_into_id"}).AddRow("approved", nil))
	mock.ExpectExec(`UPDATE recording_sessions SET line_id=\$2`).
		WithArgs("line-a", "line-b").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE lines SET status='merged'`).
		WithArgs("line-a", "line-b").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("line-b").
		WillReturnRows(lineRows("line-b", "Route B", StatusApproved, nil, nil))

	app := newTestApp(mock)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/lines/line-a/merge/line-b", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("merge status: %v %d", err, resp.StatusCode)
	}
	var target Line
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	if target.ID != "line-b" || target.Status != StatusApproved {
		t.Fatalf("unexpected merge target: %+v", target)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, merged_into_id FROM lines`).
		WithArgs("line-a").
		WillReturnRows(pgxmock.NewRows([]string{"status", "merged_into_id"}).AddRow("merged", strPtr("line-b")))
	mock.ExpectQuery(`SELECT status, merged_into_id FROM lines`).
		WithArgs("line-b").
		WillReturnRows(pgxmock.NewRows([]string{"status", "merged_into_id"}).AddRow("approved", nil))
	mock.ExpectRollback()

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/lines/line-a/merge/line-b", nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected already merged rejection, got %v %d", err, resp.StatusCode)
	}
	var errBody struct {
		Message string `json:"message"`
	}
	raw, _ := readAll(resp)
	_ = json.Unmarshal(raw, &errBody)
	if !bytes.Contains(raw, []byte("line-b")) {
		t.Fatalf("expected existing target in error body, got %s", raw)
	}
}

func TestLineHandlersSelfMerge(t *testing.T) {
	app := newTestApp(nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/lines/line-a/merge/line-a", nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected self merge rejection, got %v", err)
	}
}

func TestLineHandlersGeoJSON(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	wkt := "SRID=4326;LINESTRING(-74.006 40.7128, -74.004 40.7148)"
	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("line-1").
		WillReturnRows(lineRows("line-1", "Route 1", StatusApproved, nil, &wkt))

	app := newTestApp(mock)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lines/line-1/geojson", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("geojson status: %v", err)
	}

	var feature Feature
	if err := json.NewDecoder(resp.Body).Decode(&feature); err != nil {
		t.Fatalf("decode feature: %v", err)
	}
	if feature.Type != "Feature" || feature.Geometry.Type != "LineString" {
		t.Fatalf("unexpected feature: %+v", feature)
	}
	if len(feature.Geometry.Coordinates) != 2 {
		t.Fatalf("expected 2 coordinates, got %d", len(feature.Geometry.Coordinates))
	}
}

func TestLineHandlersGeoJSONNoPath(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("line-1").
		WillReturnRows(lineRows("line-1", "Route 1", StatusPending, nil, nil))

	app := newTestApp(mock)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lines/line-1/geojson", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for pathless line, got %v", err)
	}
}

func TestLineHandlersNearbyValidation(t *testing.T) {
	app := newTestApp(nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lines/nearby?lat=95&lng=0", nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	return buf.Bytes(), err
}
