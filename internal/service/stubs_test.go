package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/repository"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type memProgramStore struct {
	programs map[string]*models.Program
	stages   map[string]*models.Stage
}

func newMemProgramStore() *memProgramStore {
	return &memProgramStore{
		programs: make(map[string]*models.Program),
		stages:   make(map[string]*models.Stage),
	}
}

func (m *memProgramStore) List(_ context.Context, _ models.ProgramFilter) ([]models.Program, int, error) {
	var out []models.Program
	for _, p := range m.programs {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memProgramStore) FindByID(_ context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memProgramStore) Create(_ context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = "prog-" + program.Code
	}
	clone := *program
	m.programs[program.ID] = &clone
	return nil
}

func (m *memProgramStore) UpdateStatus(_ context.Context, id string, status models.ProgramStatus) error {
	p, ok := m.programs[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	return nil
}

func (m *memProgramStore) CreateStage(_ context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = "stage-" + stage.Name
	}
	clone := *stage
	m.stages[stage.ID] = &clone
	return nil
}

func (m *memProgramStore) FindStageByID(_ context.Context, id string) (*models.Stage, error) {
	if s, ok := m.stages[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memProgramStore) ListStages(_ context.Context, programID string) ([]models.Stage, error) {
	var out []models.Stage
	for _, s := range m.stages {
		if s.ProgramID == programID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memProgramStore) ExistsStageOrder(_ context.Context, programID string, order int) (bool, error) {
	for _, s := range m.stages {
		if s.ProgramID == programID && s.Order == order {
			return true, nil
		}
	}
	return false, nil
}

type memLessonStore struct {
	lessons   map[string]*models.Lesson
	exercises map[string]*models.Exercise
	edges     map[string][]string
}

func newMemLessonStore() *memLessonStore {
	return &memLessonStore{
		lessons:   make(map[string]*models.Lesson),
		exercises: make(map[string]*models.Exercise),
		edges:     make(map[string][]string),
	}
}

func (m *memLessonStore) FindByID(_ context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		clone := *l
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memLessonStore) List(_ context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range m.lessons {
		if filter.ProgramID != "" && l.ProgramID != filter.ProgramID {
			continue
		}
		if filter.StageID != "" && (l.StageID == nil || *l.StageID != filter.StageID) {
			continue
		}
		if filter.Active != nil && l.Active != *filter.Active {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memLessonStore) Create(_ context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = "lesson-" + lesson.Code
	}
	clone := *lesson
	m.lessons[lesson.ID] = &clone
	return nil
}

func (m *memLessonStore) CountActiveByProgram(_ context.Context, programID string) (int, error) {
	count := 0
	for _, l := range m.lessons {
		if l.ProgramID == programID && l.Active {
			count++
		}
	}
	return count, nil
}

func (m *memLessonStore) AddPrerequisite(_ context.Context, lessonID, prerequisiteID string) error {
	for _, existing := range m.edges[lessonID] {
		if existing == prerequisiteID {
			return nil
		}
	}
	m.edges[lessonID] = append(m.edges[lessonID], prerequisiteID)
	return nil
}

func (m *memLessonStore) RemovePrerequisite(_ context.Context, lessonID, prerequisiteID string) error {
	edges := m.edges[lessonID]
	for i, existing := range edges {
		if existing == prerequisiteID {
			m.edges[lessonID] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memLessonStore) ListPrerequisiteEdges(_ context.Context, programID string) (map[string][]string, error) {
	out := make(map[string][]string)
	for lessonID, prereqs := range m.edges {
		if l, ok := m.lessons[lessonID]; !ok || l.ProgramID != programID {
			continue
		}
		out[lessonID] = append([]string(nil), prereqs...)
	}
	return out, nil
}

func (m *memLessonStore) ListPrerequisites(_ context.Context, lessonID string) ([]string, error) {
	return append([]string(nil), m.edges[lessonID]...), nil
}

func (m *memLessonStore) CreateExercise(_ context.Context, exercise *models.Exercise) error {
	if exercise.ID == "" {
		exercise.ID = "ex-" + exercise.Code
	}
	clone := *exercise
	m.exercises[exercise.ID] = &clone
	return nil
}

func (m *memLessonStore) FindExerciseByID(_ context.Context, id string) (*models.Exercise, error) {
	if e, ok := m.exercises[id]; ok {
		clone := *e
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memLessonStore) ListExercises(_ context.Context, lessonID string) ([]models.Exercise, error) {
	var out []models.Exercise
	for _, e := range m.exercises {
		if e.LessonID == lessonID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memLessonStore) FirstActiveLesson(_ context.Context, stageID string) (*models.Lesson, error) {
	var first *models.Lesson
	for _, l := range m.lessons {
		if !l.Active || l.StageID == nil || *l.StageID != stageID {
			continue
		}
		if first == nil || l.SortOrder < first.SortOrder {
			first = l
		}
	}
	if first == nil {
		return nil, nil
	}
	clone := *first
	return &clone, nil
}

type memEnrollmentStore struct {
	mu          sync.Mutex
	enrollments map[string]*models.StudentEnrollment
	conflicts   int
}

func newMemEnrollmentStore() *memEnrollmentStore {
	return &memEnrollmentStore{enrollments: make(map[string]*models.StudentEnrollment)}
}

func (m *memEnrollmentStore) List(_ context.Context, _ models.EnrollmentFilter) ([]models.StudentEnrollment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudentEnrollment
	for _, e := range m.enrollments {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *memEnrollmentStore) FindByID(_ context.Context, id string) (*models.StudentEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		clone := *e
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memEnrollmentStore) ExistsOpen(_ context.Context, studentID, programID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID != studentID || e.ProgramID != programID {
			continue
		}
		for _, status := range models.OpenEnrollmentStatuses {
			if e.Status == status {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memEnrollmentStore) Create(_ context.Context, enrollment *models.StudentEnrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = "enr-" + enrollment.StudentID + "-" + enrollment.ProgramID
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.Version = 1
	clone := *enrollment
	m.enrollments[enrollment.ID] = &clone
	return nil
}

func (m *memEnrollmentStore) Save(_ context.Context, enrollment *models.StudentEnrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.enrollments[enrollment.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != enrollment.Version {
		m.conflicts++
		return repository.ErrVersionConflict
	}
	enrollment.Version++
	clone := *enrollment
	m.enrollments[enrollment.ID] = &clone
	return nil
}

func (m *memEnrollmentStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, e := range m.enrollments {
		if e.ExpiresAt == nil || !e.ExpiresAt.Before(now) {
			continue
		}
		for _, status := range models.OpenEnrollmentStatuses {
			if e.Status == status {
				e.Status = models.EnrollmentStatusExpired
				e.Version++
				affected++
				break
			}
		}
	}
	return affected, nil
}

func (m *memEnrollmentStore) CountByStatus(_ context.Context) (map[models.EnrollmentStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.EnrollmentStatus]int)
	for _, e := range m.enrollments {
		counts[e.Status]++
	}
	return counts, nil
}

type memCompletionStore struct {
	completions map[string]*models.LessonCompletion
	grades      map[string]*models.ExerciseGrade
	seq         int
}

func newMemCompletionStore() *memCompletionStore {
	return &memCompletionStore{
		completions: make(map[string]*models.LessonCompletion),
		grades:      make(map[string]*models.ExerciseGrade),
	}
}

func (m *memCompletionStore) FindByID(_ context.Context, id string) (*models.LessonCompletion, error) {
	if c, ok := m.completions[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memCompletionStore) List(_ context.Context, filter models.CompletionFilter) ([]models.LessonCompletion, int, error) {
	var out []models.LessonCompletion
	for _, c := range m.completions {
		if filter.EnrollmentID != "" && c.EnrollmentID != filter.EnrollmentID {
			continue
		}
		if filter.LessonID != "" && c.LessonID != filter.LessonID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memCompletionStore) ListByEnrollment(_ context.Context, enrollmentID string) ([]models.LessonCompletion, error) {
	var out []models.LessonCompletion
	for _, c := range m.completions {
		if c.EnrollmentID == enrollmentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memCompletionStore) ExistsOpen(_ context.Context, enrollmentID, lessonID string) (bool, error) {
	for _, c := range m.completions {
		if c.EnrollmentID == enrollmentID && c.LessonID == lessonID && c.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCompletionStore) CountSlotConsuming(_ context.Context, enrollmentID, lessonID string) (int, error) {
	count := 0
	for _, c := range m.completions {
		if c.EnrollmentID == enrollmentID && c.LessonID == lessonID && c.ConsumesAttemptSlot() {
			count++
		}
	}
	return count, nil
}

func (m *memCompletionStore) Create(_ context.Context, completion *models.LessonCompletion) error {
	m.seq++
	if completion.ID == "" {
		completion.ID = "comp-" + string(rune('a'+m.seq-1))
	}
	completion.CreatedAt = time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	clone := *completion
	m.completions[completion.ID] = &clone
	return nil
}

func (m *memCompletionStore) Update(_ context.Context, completion *models.LessonCompletion) error {
	if _, ok := m.completions[completion.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *completion
	m.completions[completion.ID] = &clone
	return nil
}

func (m *memCompletionStore) UpsertExerciseGrade(_ context.Context, grade *models.ExerciseGrade) error {
	key := grade.CompletionID + "/" + grade.ExerciseID
	if grade.ID == "" {
		grade.ID = key
	}
	clone := *grade
	m.grades[key] = &clone
	return nil
}

func (m *memCompletionStore) ListExerciseGrades(_ context.Context, completionID string) ([]models.ExerciseGrade, error) {
	var out []models.ExerciseGrade
	for _, g := range m.grades {
		if g.CompletionID == completionID {
			out = append(out, *g)
		}
	}
	return out, nil
}

type memStageCheckStore struct {
	checks map[string]*models.StageCheck
	seq    int
}

func newMemStageCheckStore() *memStageCheckStore {
	return &memStageCheckStore{checks: make(map[string]*models.StageCheck)}
}

func (m *memStageCheckStore) FindByID(_ context.Context, id string) (*models.StageCheck, error) {
	if c, ok := m.checks[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memStageCheckStore) List(_ context.Context, filter models.StageCheckFilter) ([]models.StageCheck, int, error) {
	var out []models.StageCheck
	for _, c := range m.checks {
		if filter.EnrollmentID != "" && c.EnrollmentID != filter.EnrollmentID {
			continue
		}
		if filter.StageID != "" && c.StageID != filter.StageID {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memStageCheckStore) ListByEnrollment(_ context.Context, enrollmentID string) ([]models.StageCheck, error) {
	var out []models.StageCheck
	for _, c := range m.checks {
		if c.EnrollmentID == enrollmentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStageCheckStore) ExistsOpen(_ context.Context, enrollmentID, stageID string) (bool, error) {
	for _, c := range m.checks {
		if c.EnrollmentID == enrollmentID && c.StageID == stageID && c.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStageCheckStore) CountAttempts(_ context.Context, enrollmentID, stageID string) (int, error) {
	count := 0
	for _, c := range m.checks {
		if c.EnrollmentID == enrollmentID && c.StageID == stageID && c.Status != models.StageCheckStatusCancelled {
			count++
		}
	}
	return count, nil
}

func (m *memStageCheckStore) Create(_ context.Context, check *models.StageCheck) error {
	m.seq++
	if check.ID == "" {
		check.ID = "check-" + string(rune('a'+m.seq-1))
	}
	clone := *check
	m.checks[check.ID] = &clone
	return nil
}

func (m *memStageCheckStore) Update(_ context.Context, check *models.StageCheck) error {
	if _, ok := m.checks[check.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *check
	m.checks[check.ID] = &clone
	return nil
}

type memUserStore struct {
	users map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
}

func (m *memUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

type captureNotifier struct {
	events []models.ProgressionEvent
}

func (n *captureNotifier) Publish(event models.ProgressionEvent) {
	n.events = append(n.events, event)
}

type memCache struct {
	entries map[string][]byte
	hits    int
	misses  int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		m.misses++
		return appErrors.ErrCacheMiss
	}
	m.hits++
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.deletes++
	delete(m.entries, key)
	return nil
}
