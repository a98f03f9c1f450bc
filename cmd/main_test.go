package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/memocred/internal/app"
	"github.com/okian/memocred/internal/config"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then it should expose run and version", func() {
			names := []string{}
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			convey.So(names, convey.ShouldContain, "run")
			convey.So(names, convey.ShouldContain, "version")
		})

		convey.Convey("When running version", func() {
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"version"})
			err := root.Execute()

			convey.Convey("Then it should print the build version", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldEqual, "memocred dev\n")
			})
		})

		convey.Convey("When running with a missing config file", func() {
			var out, errOut bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&errOut)
			root.SetArgs([]string{"run", "--config", "/non/existent/memocred.yaml"})
			err := root.Execute()
			_ = os.Unsetenv(config.EnvConfigFile)

			convey.Convey("Then it should fail before touching the network", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(out.String(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestRenderSummary(t *testing.T) {
	convey.Convey("Given a finished run", t, func() {
		res := app.Result{
			RunID: "run-7",
			State: app.StateDone,
			Scores: []model.CredibilityScore{
				{Author: "rA", Score: 0.85, Status: model.StatusScored, EvidenceCount: 3, MemoCount: 4, TimespanDays: 2},
				{Author: "rB", Score: model.Unscored, Status: model.StatusUnscored},
			},
			MemoSnapshotPath:        "out/memos_PFT.json",
			CredibilitySnapshotPath: "out/credibility_PFT.json",
		}

		convey.Convey("When rendering with the top authors", func() {
			var out bytes.Buffer
			err := renderSummary(&out, res, res.Scores[:1])

			convey.Convey("Then totals and the ranking should be printed", func() {
				convey.So(err, convey.ShouldBeNil)
				text := out.String()
				convey.So(text, convey.ShouldContainSubstring, "run-7")
				convey.So(text, convey.ShouldContainSubstring, "out/credibility_PFT.json")
				convey.So(text, convey.ShouldContainSubstring, "rA")
				convey.So(text, convey.ShouldContainSubstring, "0.85")
			})
		})

		convey.Convey("When nobody was scored", func() {
			var out bytes.Buffer
			err := renderSummary(&out, res, nil)

			convey.Convey("Then only the totals should be printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, "Unscored")
				convey.So(out.String(), convey.ShouldNotContainSubstring, "Evidence")
			})
		})
	})
}

func TestMonitoringServer(t *testing.T) {
	convey.Convey("Given a monitoring server over a fresh pipeline", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		pipeline := app.New(nil, nil, nil, app.WithLogger(logger.Nop()))
		srv := newMonitoringServer(":0", pipeline)

		convey.Convey("When reading /stats", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

			convey.Convey("Then the pipeline should report its initial state", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var stats app.Stats
				convey.So(json.NewDecoder(w.Body).Decode(&stats), convey.ShouldBeNil)
				convey.So(stats.RunID, convey.ShouldEqual, pipeline.RunID())
				convey.So(stats.State, convey.ShouldEqual, "init")
			})
		})

		convey.Convey("When reading /scores before scoring", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scores", nil))

			convey.Convey("Then the list should be empty", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldEqual, "[]\n")
			})
		})

		convey.Convey("Then the server should carry its timeouts", func() {
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			convey.So(srv.Addr, convey.ShouldEqual, ":0")
		})
	})
}
