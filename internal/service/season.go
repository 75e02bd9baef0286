package service

import (
	"context"
	"time"

	"github.com/seanyjeong/pacapro-sub001/internal/repository"
)

// SeasonEnroller 季节课报名模块对外提供的取消接口
type SeasonEnroller interface {
	// CancelActiveEnrollments 取消学生进行中的报名，返回取消条数
	CancelActiveEnrollments(ctx context.Context, repo *repository.Repository, studentID string, at time.Time) (int64, error)
}

type seasonEnroller struct{}

// NewSeasonEnroller 基于 student_seasons 表的实现
func NewSeasonEnroller() SeasonEnroller {
	return seasonEnroller{}
}

func (seasonEnroller) CancelActiveEnrollments(ctx context.Context, repo *repository.Repository, studentID string, at time.Time) (int64, error) {
	return repo.Season.CancelActive(ctx, studentID, at)
}
