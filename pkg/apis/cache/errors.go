package cache

import "github.com/pkg/errors"

var ErrMiss = errors.New("cache miss")
