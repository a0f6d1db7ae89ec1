package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/edison/pkg/jobs"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     jobs.Definition
		wantErr bool
	}{
		{name: "minimal", def: def("Foo")},
		{name: "fixed delay", def: jobs.Definition{Type: "Foo", Name: "Foo", FixedDelay: time.Minute}},
		{name: "cron", def: jobs.Definition{Type: "Foo", Name: "Foo", Cron: "0 * * * *"}},
		{name: "missing type", def: jobs.Definition{Name: "Foo"}, wantErr: true},
		{name: "missing name", def: jobs.Definition{Type: "Foo"}, wantErr: true},
		{name: "both schedules", def: jobs.Definition{Type: "Foo", Name: "Foo", FixedDelay: time.Minute, Cron: "@hourly"}, wantErr: true},
		{name: "negative timeout", def: jobs.Definition{Type: "Foo", Name: "Foo", Timeout: -time.Second}, wantErr: true},
		{name: "negative retries", def: jobs.Definition{Type: "Foo", Name: "Foo", Retries: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinition_Schedule(t *testing.T) {
	assert.Equal(t, "", def("Foo").Schedule())
	assert.False(t, def("Foo").Scheduled())

	d := jobs.Definition{Type: "Foo", Name: "Foo", FixedDelay: 90 * time.Second}
	assert.True(t, d.Scheduled())
	assert.Equal(t, "@every 1m30s", d.Schedule())

	d = jobs.Definition{Type: "Foo", Name: "Foo", Cron: " 0 3 * * * "}
	assert.Equal(t, "0 3 * * *", d.Schedule())
}
