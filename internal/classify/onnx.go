package classify

import (
	"fmt"
	"image"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/vision"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// initRuntime initializes the shared ONNX runtime environment exactly once
// per process. libraryPath may be empty when onnxruntime is on the default
// loader path.
func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Metadata describes one exported classifier: its label set, the input
// transform constants it was trained with, and optionally the final
// convolutional feature shape plus classifier-head weights used to build
// class activation maps.
type Metadata struct {
	Name         string      `json:"name"`
	Labels       []string    `json:"labels"`
	ImageSize    int         `json:"image_size"`
	Mean         [3]float32  `json:"mean"`
	Std          [3]float32  `json:"std"`
	Activation   Activation  `json:"activation"`
	FeatureShape []int64     `json:"feature_shape,omitempty"`
	ClassWeights [][]float32 `json:"class_weights,omitempty"`
}

func (m *Metadata) validate() error {
	if len(m.Labels) == 0 {
		return fmt.Errorf("metadata %q has no labels", m.Name)
	}
	if m.ImageSize <= 0 {
		m.ImageSize = 224
	}
	if m.Activation == "" {
		m.Activation = ActivationSoftmax
	}
	if len(m.FeatureShape) != 0 {
		if len(m.FeatureShape) != 4 {
			return fmt.Errorf("metadata %q: feature_shape must be NCHW, got %v", m.Name, m.FeatureShape)
		}
		if len(m.ClassWeights) != len(m.Labels) {
			return fmt.Errorf("metadata %q: class_weights rows (%d) must match labels (%d)",
				m.Name, len(m.ClassWeights), len(m.Labels))
		}
		channels := int(m.FeatureShape[1])
		for i, row := range m.ClassWeights {
			if len(row) != channels {
				return fmt.Errorf("metadata %q: class_weights[%d] has %d entries, want %d",
					m.Name, i, len(row), channels)
			}
		}
	}
	return nil
}

// OnnxClassifier runs a fixed ONNX session. The session reuses its
// input/output tensors, so forward passes are serialized with a mutex; the
// rest of the struct is read-only after load.
type OnnxClassifier struct {
	meta    Metadata
	session *ort.AdvancedSession

	mu            sync.Mutex
	inputTensor   *ort.Tensor[float32]
	logitsTensor  *ort.Tensor[float32]
	featureTensor *ort.Tensor[float32]
}

// LoadOnnx builds a classifier from a weight artifact and its metadata
// JSON. Errors here mean the model is unusable for the process lifetime.
func LoadOnnx(libraryPath, modelPath, metadataPath string) (*OnnxClassifier, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	inputShape := ort.NewShape(1, 3, int64(meta.ImageSize), int64(meta.ImageSize))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	logitsTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(meta.Labels))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create logits tensor: %w", err)
	}

	outputNames := []string{"logits"}
	outputs := []ort.ArbitraryTensor{logitsTensor}
	var featureTensor *ort.Tensor[float32]
	if len(meta.FeatureShape) == 4 {
		featureTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.FeatureShape...))
		if err != nil {
			inputTensor.Destroy()
			logitsTensor.Destroy()
			return nil, fmt.Errorf("create feature tensor: %w", err)
		}
		outputNames = append(outputNames, "features")
		outputs = append(outputs, featureTensor)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, outputNames,
		[]ort.ArbitraryTensor{inputTensor}, outputs,
		nil)
	if err != nil {
		inputTensor.Destroy()
		logitsTensor.Destroy()
		if featureTensor != nil {
			featureTensor.Destroy()
		}
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &OnnxClassifier{
		meta:          meta,
		session:       session,
		inputTensor:   inputTensor,
		logitsTensor:  logitsTensor,
		featureTensor: featureTensor,
	}, nil
}

func (c *OnnxClassifier) Name() string           { return c.meta.Name }
func (c *OnnxClassifier) Labels() []string       { return c.meta.Labels }
func (c *OnnxClassifier) Activation() Activation { return c.meta.Activation }

// Infer runs one deterministic forward pass and returns the activated
// score vector, one entry per label.
func (c *OnnxClassifier) Infer(img image.Image) ([]float32, error) {
	scores, _, err := c.run(img, false)
	return scores, err
}

// InferWithFeatures additionally captures the last convolutional feature
// map when the exported model provides one.
func (c *OnnxClassifier) InferWithFeatures(img image.Image) ([]float32, *FeatureMap, error) {
	if c.featureTensor == nil {
		return nil, nil, fmt.Errorf("classifier %q exposes no feature map", c.meta.Name)
	}
	return c.run(img, true)
}

// ClassWeights returns the classifier-head weight row for one class. For a
// pooling+linear head these equal the gradient of the class logit with
// respect to each feature channel, which is what the activation-map
// weighting needs.
func (c *OnnxClassifier) ClassWeights(classIdx int) ([]float32, error) {
	if classIdx < 0 || classIdx >= len(c.meta.ClassWeights) {
		return nil, fmt.Errorf("classifier %q has no weights for class %d", c.meta.Name, classIdx)
	}
	row := make([]float32, len(c.meta.ClassWeights[classIdx]))
	copy(row, c.meta.ClassWeights[classIdx])
	return row, nil
}

func (c *OnnxClassifier) run(img image.Image, wantFeatures bool) ([]float32, *FeatureMap, error) {
	input := vision.ToTensor(img, c.meta.ImageSize, c.meta.Mean, c.meta.Std)

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), input)
	if err := c.session.Run(); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := make([]float32, len(c.meta.Labels))
	copy(logits, c.logitsTensor.GetData())

	var scores []float32
	switch c.meta.Activation {
	case ActivationSigmoid:
		scores = Sigmoid(logits)
	default:
		scores = Softmax(logits)
	}

	var fm *FeatureMap
	if wantFeatures && c.featureTensor != nil {
		data := make([]float32, len(c.featureTensor.GetData()))
		copy(data, c.featureTensor.GetData())
		fm = &FeatureMap{
			Channels: int(c.meta.FeatureShape[1]),
			Height:   int(c.meta.FeatureShape[2]),
			Width:    int(c.meta.FeatureShape[3]),
			Data:     data,
		}
	}
	return scores, fm, nil
}

// Close releases the session tensors. Classifiers normally live for the
// whole process; this exists for orderly shutdown.
func (c *OnnxClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.logitsTensor != nil {
		c.logitsTensor.Destroy()
		c.logitsTensor = nil
	}
	if c.featureTensor != nil {
		c.featureTensor.Destroy()
		c.featureTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
}
