package main

import (
	"errors"
	"strconv"
)

func parseVersion(s string) (int, error) {
	if s == "" {
		return 0, errors.New("force needs a version")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < -1 {
		return 0, errors.New("version must be -1 or greater")
	}
	return v, nil
}
