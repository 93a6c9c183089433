package platform

import (
	"context"
	"fmt"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
)

// ListCourses returns the first limit courses.
func (s *platformService) ListCourses(ctx context.Context, limit int) (*model.Page[model.Course], error) {
	endpoint := fmt.Sprintf("courses?limit=%d", limit)
	var page model.Page[model.Course]
	if err := s.client.GetJSON(ctx, endpoint, &page, CacheFor(courseTTL)); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetCourse fetches one course, cached under "course:<id>".
func (s *platformService) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	endpoint := fmt.Sprintf("courses/%d", id)
	policy := CacheFor(courseTTL).WithKey(cache.ResourceKey("course", id))
	var course model.Course
	if err := s.client.GetJSON(ctx, endpoint, &course, policy); err != nil {
		return nil, err
	}
	return &course, nil
}

// UpdateCourse patches a course and drops every cached course view.
func (s *platformService) UpdateCourse(ctx context.Context, id int64, input model.CourseUpdate) (*model.Course, error) {
	endpoint := fmt.Sprintf("courses/%d", id)
	var course model.Course
	if err := s.client.PatchJSON(ctx, endpoint, input, &course); err != nil {
		return nil, err
	}
	s.invalidate.Courses(ctx)
	return &course, nil
}

// ListMentors returns every mentor. The list changes rarely, so it is kept
// in the persistent tier.
func (s *platformService) ListMentors(ctx context.Context) ([]model.Mentor, error) {
	var mentors []model.Mentor
	if err := s.client.GetJSON(ctx, "mentors", &mentors, PersistFor(mentorTTL)); err != nil {
		return nil, err
	}
	return mentors, nil
}
