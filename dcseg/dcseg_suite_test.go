package dcseg_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestDCSEG(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
