package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/repository"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/export"
)

type mockEnrollmentRepo struct {
	enrolled  map[string]bool
	seatsLeft map[string]int
	roster    map[string][]models.RosterEntry
	dropped   []string
}

func key(studentID, courseID string) string { return studentID + ":" + courseID }

func (m *mockEnrollmentRepo) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if m.seatsLeft == nil {
		return nil, sql.ErrNoRows
	}
	seats, ok := m.seatsLeft[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if m.enrolled[key(studentID, courseID)] {
		return nil, repository.ErrAlreadyEnrolled
	}
	if seats <= 0 {
		return nil, repository.ErrNoSeats
	}
	if m.enrolled == nil {
		m.enrolled = make(map[string]bool)
	}
	m.enrolled[key(studentID, courseID)] = true
	m.seatsLeft[courseID] = seats - 1
	return &models.Enrollment{ID: "enr-1", StudentID: studentID, CourseID: courseID, EnrolledAt: time.Now()}, nil
}

func (m *mockEnrollmentRepo) Drop(ctx context.Context, studentID, courseID string) error {
	if _, ok := m.seatsLeft[courseID]; !ok {
		return sql.ErrNoRows
	}
	if !m.enrolled[key(studentID, courseID)] {
		return repository.ErrNotEnrolled
	}
	delete(m.enrolled, key(studentID, courseID))
	m.seatsLeft[courseID]++
	m.dropped = append(m.dropped, key(studentID, courseID))
	return nil
}

func (m *mockEnrollmentRepo) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.enrolled[key(studentID, courseID)], nil
}

func (m *mockEnrollmentRepo) ListRosterByCourse(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	return m.roster[courseID], nil
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for k := range m.enrolled {
		if len(k) > len(studentID) && k[:len(studentID)] == studentID {
			list = append(list, models.Enrollment{StudentID: studentID, CourseID: k[len(studentID)+1:]})
		}
	}
	return list, nil
}

func (m *mockEnrollmentRepo) CountByCourse(ctx context.Context, courseID string) (int, error) {
	count := 0
	for k := range m.enrolled {
		if k[len(k)-len(courseID):] == courseID {
			count++
		}
	}
	return count, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func disabledCache() *CacheService {
	return NewCacheService(nil, nil, 0, zap.NewNop(), false)
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo) {
	repo := &mockEnrollmentRepo{
		enrolled:  map[string]bool{},
		seatsLeft: map[string]int{"course-1": 2},
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Code: "CS101", InstructorID: "inst-1", MaxSeats: 2, SeatsLeft: 2},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Role: models.RoleStudent, Active: true},
		"stu-2": {ID: "stu-2", Role: models.RoleStudent, Active: true},
		"stu-3": {ID: "stu-3", Role: models.RoleStudent, Active: true},
		"frozen": {ID: "frozen", Role: models.RoleStudent, Active: false},
		"inst-1": {ID: "inst-1", Role: models.RoleInstructor, Active: true},
	}}
	guard := NewAuthzGuard(repo)
	svc := NewEnrollmentService(repo, courses, users, guard, disabledCache(), export.NewCSVExporter(), export.NewPDFExporter(), nil, zap.NewNop())
	return svc, repo
}

func TestEnrollmentServiceEnrollSelf(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	enrollment, err := svc.Enroll(context.Background(), actor, "stu-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", enrollment.StudentID)
	assert.True(t, repo.enrolled["stu-1:course-1"])
	assert.Equal(t, 1, repo.seatsLeft["course-1"])
}

func TestEnrollmentServiceEnrollOtherStudentForbidden(t *testing.T) {
	svc, _ := newEnrollmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.Enroll(context.Background(), actor, "stu-2", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestEnrollmentServiceAdminEnrollsOnBehalf(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	actor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.Enroll(context.Background(), actor, "stu-2", "course-1")
	require.NoError(t, err)
	assert.True(t, repo.enrolled["stu-2:course-1"])
}

func TestEnrollmentServiceEnrollTwiceConflicts(t *testing.T) {
	svc, _ := newEnrollmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.Enroll(context.Background(), actor, "stu-1", "course-1")
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), actor, "stu-1", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestEnrollmentServiceNoSeatsLeft(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "course-1")
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-2", Role: models.RoleStudent}, "stu-2", "course-1")
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-3", Role: models.RoleStudent}, "stu-3", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoSeats))
}

func TestEnrollmentServiceEnrollInactiveStudent(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "frozen", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestEnrollmentServiceEnrollNonStudent(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "inst-1", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestEnrollmentServiceEnrollUnknownCourse(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentServiceDropReleasesSeat(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.Enroll(context.Background(), actor, "stu-1", "course-1")
	require.NoError(t, err)

	require.NoError(t, svc.Drop(context.Background(), actor, "stu-1", "course-1"))
	assert.Equal(t, 2, repo.seatsLeft["course-1"])
	assert.False(t, repo.enrolled["stu-1:course-1"])
}

func TestEnrollmentServiceDropNotEnrolled(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	err := svc.Drop(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentServiceRosterRequiresStaff(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	repo.roster = map[string][]models.RosterEntry{
		"course-1": {{StudentID: "stu-1", FullName: "Student One", Email: "one@example.com", EnrolledAt: time.Now()}},
	}

	_, err := svc.ListEnrolledStudents(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	roster, err := svc.ListEnrolledStudents(context.Background(), models.Actor{ID: "inst-1", Role: models.RoleInstructor}, "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Student One", roster[0].FullName)
}

func TestEnrollmentServiceSeatLifecycle(t *testing.T) {
	svc, repo := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.seatsLeft["course-1"])

	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-2", Role: models.RoleStudent}, "stu-2", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 0, repo.seatsLeft["course-1"])

	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-3", Role: models.RoleStudent}, "stu-3", "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoSeats))
	assert.Equal(t, 0, repo.seatsLeft["course-1"])

	require.NoError(t, svc.Drop(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "course-1"))
	assert.Equal(t, 1, repo.seatsLeft["course-1"])

	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-3", Role: models.RoleStudent}, "stu-3", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 0, repo.seatsLeft["course-1"])
}

func TestEnrollmentServiceCountEnrolled(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "stu-1", "course-1")
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), models.Actor{ID: "stu-2", Role: models.RoleStudent}, "stu-2", "course-1")
	require.NoError(t, err)

	count, err := svc.CountEnrolled(context.Background(), models.Actor{ID: "inst-1", Role: models.RoleInstructor}, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.CountEnrolled(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestEnrollmentServiceExportRosterCSV(t *testing.T) {
	svc, repo := newEnrollmentFixture()
	repo.roster = map[string][]models.RosterEntry{
		"course-1": {{StudentID: "stu-1", FullName: "Student One", Email: "one@example.com", EnrolledAt: time.Now()}},
	}

	payload, filename, err := svc.ExportRoster(context.Background(), models.Actor{ID: "inst-1", Role: models.RoleInstructor}, "course-1", RosterFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "roster-CS101.csv", filename)
	assert.Contains(t, string(payload), "Student One")
}

func TestEnrollmentServiceExportRosterUnknownFormat(t *testing.T) {
	svc, _ := newEnrollmentFixture()

	_, _, err := svc.ExportRoster(context.Background(), models.Actor{ID: "inst-1", Role: models.RoleInstructor}, "course-1", "xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
