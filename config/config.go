package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token   string `toml:"token" mapstructure:"token"`
	Host    string `toml:"host" mapstructure:"host"`
	Port    string `toml:"port" mapstructure:"port"`
	Libonnx string `toml:"libonnx" mapstructure:"libonnx"`

	ModelUrl        string `toml:"model_url" mapstructure:"model_url"`
	ModelDir        string `toml:"model_dir" mapstructure:"model_dir"`
	ModelFileName   string `toml:"model_file_name" mapstructure:"model_file_name"`
	ModelLabelsName string `toml:"model_labels_name" mapstructure:"model_labels_name"`

	UploadDir     string `toml:"upload_dir" mapstructure:"upload_dir"`
	FieldName     string `toml:"field_name" mapstructure:"field_name"`
	MaxUploadSize int64  `toml:"max_upload_size" mapstructure:"max_upload_size"`

	Sessions      int     `toml:"sessions" mapstructure:"sessions"`
	ConfThreshold float32 `toml:"conf_threshold" mapstructure:"conf_threshold"`
	IouThreshold  float32 `toml:"iou_threshold" mapstructure:"iou_threshold"`
	MaxDetections int     `toml:"max_detections" mapstructure:"max_detections"`
}

const envPrefix = "KONADETECT_"

func Default() Config {
	return Config{
		Token:           "",
		Host:            "0.0.0.0",
		Port:            "5050",
		ModelUrl:        "https://github.com/ultralytics/yolov5/releases/download/v7.0/yolov5s.onnx",
		ModelDir:        "models",
		ModelFileName:   "yolov5s.onnx",
		ModelLabelsName: "coco.names",
		UploadDir:       os.TempDir(),
		FieldName:       "imageFile",
		MaxUploadSize:   32 << 20,
		Sessions:        1,
		ConfThreshold:   0.25,
		IouThreshold:    0.45,
		MaxDetections:   1000,
	}
}

var (
	cfg      Config
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		// a missing .env is fine
		_ = godotenv.Load()
		c, err := Load("config.toml")
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, c.validate()
}

func applyEnv(c *Config) error {
	strs := map[string]*string{
		"HOST":       &c.Host,
		"PORT":       &c.Port,
		"TOKEN":      &c.Token,
		"LIBONNX":    &c.Libonnx,
		"MODEL_DIR":  &c.ModelDir,
		"UPLOAD_DIR": &c.UploadDir,
	}
	for key, dst := range strs {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(envPrefix + "SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSESSIONS %q: %w", envPrefix, v, err)
		}
		c.Sessions = n
	}
	return nil
}

func (c Config) validate() error {
	if c.Sessions < 1 {
		return fmt.Errorf("sessions must be at least 1, got %d", c.Sessions)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive, got %d", c.MaxUploadSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("conf_threshold must be in [0,1], got %v", c.ConfThreshold)
	}
	if c.IouThreshold < 0 || c.IouThreshold > 1 {
		return fmt.Errorf("iou_threshold must be in [0,1], got %v", c.IouThreshold)
	}
	if c.FieldName == "" {
		return fmt.Errorf("field_name must not be empty")
	}
	return nil
}
