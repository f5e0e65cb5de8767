package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Load reads, expands, defaults and validates a job config.
//
// path may be a YAML/JSON file, a .cue file, or a directory holding a
// single CUE package.
func Load(path string) (*Job, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	ctx := cuecontext.New()
	var job *Job
	switch {
	case info.IsDir():
		job, err = loadCUEDir(ctx, path)
	case strings.EqualFold(filepath.Ext(path), ".cue"):
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: readErr.Error()}
		}
		job, err = decodeCUE(ctx, ctx.CompileBytes(data, cue.Filename(path)))
	default:
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: readErr.Error()}
		}
		job, err = decodeYAML(data)
	}
	if err != nil {
		return nil, err
	}

	baseDir := path
	if !info.IsDir() {
		baseDir = filepath.Dir(path)
	}
	if err := finish(ctx, job, baseDir); err != nil {
		return nil, err
	}
	return job, nil
}

// Parse decodes a YAML job from memory. Relative env_file paths resolve
// against baseDir.
func Parse(data []byte, baseDir string) (*Job, error) {
	job, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	if err := finish(cuecontext.New(), job, baseDir); err != nil {
		return nil, err
	}
	return job, nil
}

// finish expands env references, applies defaults and validates.
func finish(ctx *cue.Context, job *Job, baseDir string) error {
	if err := expandEnv(job, baseDir); err != nil {
		return err
	}
	job.ApplyDefaults()
	if err := validateSchema(ctx, job); err != nil {
		return err
	}
	return job.Check()
}

func decodeYAML(data []byte) (*Job, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var job Job
	if err := dec.Decode(&job); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("parse YAML: %v", err)}
	}
	return &job, nil
}

func loadCUEDir(ctx *cue.Context, dir string) (*Job, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	return decodeCUE(ctx, ctx.BuildInstance(inst))
}

// decodeCUE unifies a CUE job with the schema so schema defaults apply,
// then decodes it.
func decodeCUE(ctx *cue.Context, value cue.Value) (*Job, error) {
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeLoadFailed, err)
	}
	schema, err := jobSchema(ctx)
	if err != nil {
		return nil, err
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err)
	}

	var job Job
	if err := unified.Decode(&job); err != nil {
		return nil, cueLoadError(ErrCodeLoadFailed, err)
	}
	return &job, nil
}

// validateSchema checks a decoded job against #Job. The job goes through
// JSON so omitted optional fields stay absent.
func validateSchema(ctx *cue.Context, job *Job) error {
	schema, err := jobSchema(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("encode job: %v", err)}
	}
	value := ctx.CompileBytes(data, cue.Filename("job.json"))
	if err := value.Err(); err != nil {
		return cueLoadError(ErrCodeLoadFailed, err)
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

func jobSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile job schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Job")), nil
}

func schemaError(err error) error {
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		problems = append(problems, e.Error())
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	return &ValidationError{Code: ErrCodeSchema, Problems: problems}
}

func cueLoadError(code string, err error) error {
	le := &LoadError{Code: code, Message: err.Error()}
	var ce cueerrors.Error
	if errors.As(err, &ce) {
		le.Pos = ce.Position()
	}
	return le
}

// expandEnv replaces ${VAR} and $VAR references in DSNs and the Badger path.
func expandEnv(job *Job, baseDir string) error {
	fileEnv := map[string]string{}
	if job.EnvFile != "" {
		envPath := job.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(baseDir, envPath)
		}
		var err error
		fileEnv, err = godotenv.Read(envPath)
		if err != nil {
			return &LoadError{Code: ErrCodeEnv, Message: fmt.Sprintf("read env file: %v", err)}
		}
	}

	missing := map[string]bool{}
	lookup := func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if v, ok := fileEnv[name]; ok {
			return v
		}
		missing[name] = true
		return ""
	}

	for _, field := range []*string{
		&job.Source.DSN,
		&job.Destination.DSN,
		&job.Cursor.DSN,
		&job.Cursor.Path,
	} {
		*field = os.Expand(*field, lookup)
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return &LoadError{Code: ErrCodeEnv, Message: fmt.Sprintf("undefined environment variables: %s", strings.Join(names, ", "))}
	}
	return nil
}
