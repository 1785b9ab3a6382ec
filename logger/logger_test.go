package logger_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/casepipe/logger"
)

var _ = Describe("Logger", func() {
	log := logger.NewLogger("test-service", "debug", true)
	log.SetJSONFormat()

	read := func(buf *bytes.Buffer) map[string]interface{} {
		var actual map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &actual)).To(Succeed())
		return actual
	}

	It("Should have `test-service` as service name", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.Info("Testing")
		Expect(read(logOutput)["service"]).To(Equal("test-service"))
	})

	It("Should have info as log level", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.Info("Testing")
		Expect(read(logOutput)["level"]).To(Equal("info"))
	})

	It("Should have warning as log level", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.Warn("Testing")
		Expect(read(logOutput)["level"]).To(Equal("warning"))
	})

	It("Should have error as log level with a stack trace", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.Error("Testing")
		actual := read(logOutput)
		Expect(actual["level"]).To(Equal("error"))
		Expect(actual["stackTrace"]).ToNot(BeNil())
	})

	It("Should have `Testing` as msg", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.Info("Testing")
		Expect(read(logOutput)["msg"]).To(Equal("Testing"))
	})

	It("Should add fields with WithField", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)
		log.WithField("run", "abc123").Info("Testing")
		actual := read(logOutput)
		Expect(actual["run"]).To(Equal("abc123"))
		Expect(actual["service"]).To(Equal("test-service"))
	})
})
