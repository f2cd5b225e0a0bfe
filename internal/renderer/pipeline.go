package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

// Pipeline is the render pass and graphics pipeline the quad is drawn
// with. Viewport and scissor are dynamic, so a swapchain rebuild leaves it
// valid as long as the surface format is unchanged.
type Pipeline struct {
	RenderPass          gpu.RenderPass
	DescriptorSetLayout gpu.DescriptorSetLayout
	Layout              gpu.PipelineLayout
	Pipeline            gpu.Pipeline

	device gpu.Device
}

// BuildPipeline creates the render pass for colorFormat and a pipeline
// running the given SPIR-V stages. The shader modules do not outlive the
// call.
func BuildPipeline(device gpu.Device, colorFormat core1_0.Format, vertexCode, fragmentCode []byte) (*Pipeline, error) {
	pipeline := &Pipeline{device: device}
	if err := pipeline.build(colorFormat, vertexCode, fragmentCode); err != nil {
		pipeline.Destroy()
		return nil, err
	}
	return pipeline, nil
}

func (p *Pipeline) build(colorFormat core1_0.Format, vertexCode, fragmentCode []byte) error {
	var err error

	p.RenderPass, err = p.device.CreateRenderPass(renderPassInfo(colorFormat))
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	p.DescriptorSetLayout, err = p.device.CreateDescriptorSetLayout(descriptorSetLayoutInfo())
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}

	p.Layout, err = p.device.CreatePipelineLayout(p.DescriptorSetLayout)
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	vertShader, err := p.device.CreateShaderModule(vertexCode)
	if err != nil {
		return errors.Wrap(err, "create vertex shader module")
	}
	defer p.device.DestroyShaderModule(vertShader)

	fragShader, err := p.device.CreateShaderModule(fragmentCode)
	if err != nil {
		return errors.Wrap(err, "create fragment shader module")
	}
	defer p.device.DestroyShaderModule(fragShader)

	p.Pipeline, err = p.device.CreateGraphicsPipeline(graphicsPipelineDesc(vertShader, fragShader, p.Layout, p.RenderPass))
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}

	return nil
}

func (p *Pipeline) Destroy() {
	if p.Pipeline != 0 {
		p.device.DestroyPipeline(p.Pipeline)
		p.Pipeline = 0
	}
	if p.Layout != 0 {
		p.device.DestroyPipelineLayout(p.Layout)
		p.Layout = 0
	}
	if p.RenderPass != 0 {
		p.device.DestroyRenderPass(p.RenderPass)
		p.RenderPass = 0
	}
	if p.DescriptorSetLayout != 0 {
		p.device.DestroyDescriptorSetLayout(p.DescriptorSetLayout)
		p.DescriptorSetLayout = 0
	}
}

func renderPassInfo(colorFormat core1_0.Format) core1_0.RenderPassCreateInfo {
	return core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         colorFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	}
}

// The vertex stage reads the uniform buffer object at binding 0.
func descriptorSetLayoutInfo() core1_0.DescriptorSetLayoutCreateInfo {
	return core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
		},
	}
}

func graphicsPipelineDesc(vertShader, fragShader gpu.ShaderModule, layout gpu.PipelineLayout, renderPass gpu.RenderPass) gpu.GraphicsPipelineDesc {
	return gpu.GraphicsPipelineDesc{
		Stages: []gpu.ShaderStage{
			{Stage: core1_0.StageVertex, Module: vertShader, Entry: "main"},
			{Stage: core1_0.StageFragment, Module: fragShader, Entry: "main"},
		},
		VertexInput: core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   vertexBindingDescriptions(),
			VertexAttributeDescriptions: vertexAttributeDescriptions(),
		},
		InputAssembly: core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		ViewportCount: 1,
		Rasterization: core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		ColorBlend: core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:        true,
					SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
					DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
					ColorBlendOp:        core1_0.BlendOpAdd,
					SrcAlphaBlendFactor: core1_0.BlendFactorOne,
					DstAlphaBlendFactor: core1_0.BlendFactorZero,
					AlphaBlendOp:        core1_0.BlendOpAdd,
					ColorWriteMask:      core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
		Layout:     layout,
		RenderPass: renderPass,
		Subpass:    0,
	}
}
