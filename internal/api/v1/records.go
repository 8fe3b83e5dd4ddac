package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/datastore"
)

// AttendanceRecord is the JSON form of a datastore attendance row
type AttendanceRecord struct {
	ID           uint   `json:"id"`
	PersonID     *uint  `json:"person_id,omitempty"`
	DepartmentID *uint  `json:"department_id,omitempty"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Kind         string `json:"kind"`
	PhotoPath    string `json:"photo_path,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// ExitRecord is the JSON form of a datastore exit row
type ExitRecord struct {
	ID           uint   `json:"id"`
	PersonID     *uint  `json:"person_id,omitempty"`
	DepartmentID *uint  `json:"department_id,omitempty"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	PhotoPath    string `json:"photo_path,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// RecordsResponse wraps a listing. Date is set for single day listings.
type RecordsResponse[T any] struct {
	Date    string `json:"date,omitempty"`
	Count   int    `json:"count"`
	Records []T    `json:"records"`
}

func toAttendance(rows []datastore.AttendanceRecord) []AttendanceRecord {
	out := make([]AttendanceRecord, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, AttendanceRecord{
			ID: r.ID, PersonID: r.PersonID, DepartmentID: r.DepartmentID,
			Name: r.Name, Status: r.Status, Kind: r.Kind, PhotoPath: r.PhotoPath,
			Date: r.Date, Time: r.Time,
		})
	}
	return out
}

func toExits(rows []datastore.ExitRecord) []ExitRecord {
	out := make([]ExitRecord, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, ExitRecord{
			ID: r.ID, PersonID: r.PersonID, DepartmentID: r.DepartmentID,
			Name: r.Name, Kind: r.Kind, PhotoPath: r.PhotoPath,
			Date: r.Date, Time: r.Time,
		})
	}
	return out
}

// today returns the current day in the attendance location
func (c *Controller) today() time.Time {
	return time.Now().In(c.Settings.Location())
}

// listPrecheck resolves the tenant and makes sure a store is configured.
// ok is false once a response was written.
func (c *Controller) listPrecheck(ctx echo.Context) (tenantID uint, ok bool, err error) {
	tenantID, found := auth.TenantID(ctx)
	if !found {
		return 0, false, c.HandleError(ctx, nil, "missing tenant", http.StatusUnauthorized)
	}
	if c.DS == nil {
		return 0, false, c.HandleError(ctx, nil, "no record store is configured", http.StatusServiceUnavailable)
	}
	return tenantID, true, nil
}

func (c *Controller) listAttendance(ctx echo.Context, day *time.Time) error {
	tenantID, ok, err := c.listPrecheck(ctx)
	if !ok {
		return err
	}
	rows, err := c.DS.ListAttendance(ctx.Request().Context(), tenantID, day)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list attendance", http.StatusInternalServerError)
	}
	resp := RecordsResponse[AttendanceRecord]{Records: toAttendance(rows)}
	resp.Count = len(resp.Records)
	if day != nil {
		resp.Date = day.Format(datastore.DateLayout)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) listExits(ctx echo.Context, day *time.Time) error {
	tenantID, ok, err := c.listPrecheck(ctx)
	if !ok {
		return err
	}
	rows, err := c.DS.ListExits(ctx.Request().Context(), tenantID, day)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list exits", http.StatusInternalServerError)
	}
	resp := RecordsResponse[ExitRecord]{Records: toExits(rows)}
	resp.Count = len(resp.Records)
	if day != nil {
		resp.Date = day.Format(datastore.DateLayout)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// AttendanceToday handles GET /api/v1/attendance/today
func (c *Controller) AttendanceToday(ctx echo.Context) error {
	day := c.today()
	return c.listAttendance(ctx, &day)
}

// AttendanceHistory handles GET /api/v1/attendance/history
func (c *Controller) AttendanceHistory(ctx echo.Context) error {
	return c.listAttendance(ctx, nil)
}

// ExitsToday handles GET /api/v1/exits/today
func (c *Controller) ExitsToday(ctx echo.Context) error {
	day := c.today()
	return c.listExits(ctx, &day)
}

// ExitsHistory handles GET /api/v1/exits/history
func (c *Controller) ExitsHistory(ctx echo.Context) error {
	return c.listExits(ctx, nil)
}
