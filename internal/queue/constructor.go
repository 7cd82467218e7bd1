package queue

import (
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/internal/service"
)

const TaskTypePublishPost = "crosspost:publish"

// PublishPayload is the serialized body of a publish task. It carries the
// platform list resolved at schedule time; accounts and tokens are resolved
// again when the task runs.
type PublishPayload struct {
	PostID    int64    `json:"post_id"`
	UserID    int64    `json:"user_id"`
	Platforms []string `json:"platforms"`
}

type Worker struct {
	pr       repository.PostRepository
	ac       repository.SocialAccountRepository
	pp       repository.PlatformPostRepository
	tokens   service.TokenService
	registry *platform.Registry
	fetcher  *platform.MediaFetcher
}

func NewWorker(
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	pp repository.PlatformPostRepository,
	tokens service.TokenService,
	registry *platform.Registry,
	fetcher *platform.MediaFetcher) *Worker {
	return &Worker{
		pr:       pr,
		ac:       ac,
		pp:       pp,
		tokens:   tokens,
		registry: registry,
		fetcher:  fetcher,
	}
}
