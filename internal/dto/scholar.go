package dto

import (
	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

// ListScholarsQuery captures list filters. Department users cannot widen their scope with it.
type ListScholarsQuery struct {
	Faculty    string `form:"faculty"`
	Department string `form:"department"`
	Review     string `form:"review"`
}

// CreateScholarRequest captures POST /scholars/applications payload.
type CreateScholarRequest struct {
	ApplicationNo string             `json:"application_no" validate:"required,max=64"`
	Name          string             `json:"name" validate:"required,max=255"`
	Faculty       string             `json:"faculty" validate:"omitempty,max=255"`
	Institution   string             `json:"institution" validate:"omitempty,max=255"`
	Department    string             `json:"department" validate:"omitempty,max=255"`
	Program       string             `json:"program" validate:"required,max=255"`
	ProgramType   models.ProgramType `json:"program_type" validate:"omitempty,oneof='Full Time' 'Part Time Internal' 'Part Time External' 'Part Time External (Industry)'"`
}

// ScholarListResponse is a role-scoped working set.
type ScholarListResponse struct {
	Tier    admissions.Tier  `json:"tier"`
	Count   int              `json:"count"`
	Records []models.Scholar `json:"records"`

	// CacheHit reports whether the working set came from the cache.
	CacheHit bool `json:"-"`
}

// FacultyCount is one row of the per-faculty breakdown.
type FacultyCount struct {
	Faculty admissions.Faculty `json:"faculty"`
	Count   int                `json:"count"`
}

// ScholarSummary aggregates a working set for dashboards.
type ScholarSummary struct {
	Tier            admissions.Tier                  `json:"tier"`
	Total           int                              `json:"total"`
	ByReview        map[models.DeptReview]int        `json:"byReview"`
	ByQualification map[admissions.Qualification]int `json:"byQualification"`
	Faculties       []FacultyCount                   `json:"faculties"`
}

// IDsRequest carries an explicit list of record ids.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// DeleteResponse reports removed records.
type DeleteResponse struct {
	Deleted int      `json:"deleted"`
	IDs     []string `json:"ids"`
}
