package catalog

import "github.com/maxedout/modelfetch/internal/artifact"

// DefaultBaseURL is the pinned revision of the model store.
const DefaultBaseURL = "https://huggingface.co/MaxedOut/ComfyUI-Starter-Packs/resolve/7e036e0bdf2cfd04d07668b768bc887b583f745c"

func entry(remote, local, sha string) artifact.Descriptor {
	return artifact.Descriptor{RemotePath: remote, LocalPath: local, Fingerprint: sha}
}

var (
	t5xxlFP16 = entry("Flux1/clip/t5xxl_fp16.safetensors", "clip/t5xxl_fp16.safetensors",
		"6e480b09fae049a72d2a8c5fbccb8d3e92febeb233bbe9dfe7256958a9167635")
	clipL = entry("Flux1/clip/clip_l.safetensors", "clip/clip_l.safetensors",
		"660c6f5b1abae9dc498ac2d21e1347d2abdb0cf6c0c0c8576cd796491d9a6cdd")

	devFP8 = entry("Flux1/unet/Dev/flux1-dev-fp8.safetensors", "diffusion_models/flux1-dev-fp8.safetensors",
		"1be961341be8f5307ef26c787199f80bf4e0de3c1c0b4617095aa6ee5550dfce")
	fillFP8 = entry("Flux1/unet/Fill/flux1-fill-dev-fp8.safetensors", "diffusion_models/flux1-fill-dev-fp8.safetensors",
		"0320d505ca42bca99c5bd600b1839ced2b2e980ea985917965d411d98a710729")
	cannyFP8 = entry("Flux1/unet/Canny/flux1-canny-dev-fp8.safetensors", "diffusion_models/flux1-canny-dev-fp8.safetensors",
		"3225da20cfcf18a0537147acb5f57fa11f75ff568827cadcfcbba3289f136574")
	depthFP8 = entry("Flux1/unet/Depth/flux1-depth-dev-fp8.safetensors", "diffusion_models/flux1-depth-dev-fp8.safetensors",
		"4206c6b3f737d350170e2ac9f5b4facf15cb25f1da813608023caf6a34d4edef")
	schnellFP8 = entry("Flux1/unet/Schnell/flux1-schnell-fp8.safetensors", "diffusion_models/flux1-schnell-fp8.safetensors",
		"bbdfba27fed8ff3be237523fb37b83821a6c4bbaa1db43ef9288767d0e4042fb")

	fillFP16 = entry("Flux1/unet/Fill/flux1-fill-dev-fp16.safetensors", "diffusion_models/flux1-fill-dev-fp16.safetensors",
		"03e289f530df51d014f48e675a9ffa2141bc003259bf5f25d75b957e920a41ca")
	cannyFP16 = entry("Flux1/unet/Canny/flux1-canny-dev-fp16.safetensors", "diffusion_models/flux1-canny-dev-fp16.safetensors",
		"996876670169591cb412b937fbd46ea14cbed6933aef17c48a2dcd9685c98cdb")
	depthFP16 = entry("Flux1/unet/Depth/flux1-depth-dev-fp16.safetensors", "diffusion_models/flux1-depth-dev-fp16.safetensors",
		"41360d1662f44ca45bc1b665fe6387e91802f53911001630d970a4f8be8dac21")
	schnellFP16 = entry("Flux1/unet/Schnell/flux1-schnell-fp16.safetensors", "diffusion_models/flux1-schnell-fp16.safetensors",
		"9403429e0052277ac2a87ad800adece5481eecefd9ed334e1f348723621d2a0a")
	devFP16 = entry("Flux1/unet/Dev/flux1-dev-fp16.safetensors", "diffusion_models/flux1-dev-fp16.safetensors",
		"4610115bb0c89560703c892c59ac2742fa821e60ef5871b33493ba544683abd7")

	vae = entry("Flux1/vae/ae.safetensors", "vae/ae.safetensors",
		"afc8e28272cd15db3919bacdb6918ce9c1ed22e96cb12c4d5ed0fba823529e38")
	pulid = entry("Flux1/PuLID/pulid_flux_v0.9.1.safetensors", "pulid/pulid_flux_v0.9.1.safetensors",
		"92c41c3af322b02e58e1b32842e4601e08c8f16ec1fe80089dbe957df510f51d")
	redux = entry("Flux1/Style_Models/flux1-redux-dev.safetensors", "style_models/flux1-redux-dev.safetensors",
		"a1b3bdcb4bdc58ce04874b9ca776d61fc3e914bb6beab41efb63e4e2694dca45")
	sigclip = entry("Flux1/clip_vision/sigclip_vision_patch14_384.safetensors", "clip_vision/sigclip_vision_patch14_384.safetensors",
		"1fee501deabac72f0ed17610307d7131e3e9d1e838d0363aa3c2b97a6e03fb33")
	realESRGAN = entry("Upscale_Models/RealESRGAN_x2plus.pth", "upscale_models/RealESRGAN_x2plus.pth",
		"49fafd45f8fd7aa8d31ab2a22d14d91b536c34494a5cfe31eb5d89c2fa266abb")
	ultraSharp = entry("Upscale_Models/4x-UltraSharp.pth", "upscale_models/4x-UltraSharp.pth",
		"a5812231fc936b42af08a5edba784195495d303d5b3248c24489ef0c4021fe01")
	samVitB = entry("Adetailer/sams/sam_vit_b_01ec64.pth", "sams/sam_vit_b_01ec64.pth",
		"ec2df62732614e57411cdcf32a23ffdf28910380d03139ee0f4fcbe91eb8c912")
	faceYolo = entry("Adetailer/Ultralytics/bbox/face_yolov8m.pt", "ultralytics/bbox/face_yolov8m.pt",
		"e3893a92c5c1907136b6cc75404094db767c1e0cfefe1b43e87dad72af2e4c9f")
	handYolo = entry("Adetailer/Ultralytics/bbox/hand_yolov8s.pt", "ultralytics/bbox/hand_yolov8s.pt",
		"30878cea9870964d4a238339e9dcff002078bbbaa1a058b07e11c167f67eca1c")
	unionPro = entry("Flux1/Controlnets/flux_shakker_labs_union_pro-fp8.safetensors", "controlnet/flux_shakker_labs_union_pro-fp8.safetensors",
		"9535c82da8b4abb26eaf827e60cc3da401ed676ea85787f17b168a671b27e491")
	codeformer = entry("FaceRestore_Models/codeformer.pth", "facerestore_models/codeformer.pth",
		"1009e537e0c2a07d4cabce6355f53cb66767cd4b4297ec7a4a64ca4b8a5684b7")
	gfpgan = entry("FaceRestore_Models/GFPGANv1.4.pth", "facerestore_models/GFPGANv1.4.pth",
		"e2cd4703ab14f4d01fd1383a8a8b266f9a5833dacee8e6a79d3bf21a1b6be5ad")
	naviLora = entry("Flux1/LoRas/navi_flux_v1.safetensors", "loras/navi_flux_v1.safetensors",
		"8c60d9038512bba3964bba0768771c2724a76cd41e5cfb5543dca8b84570e303")
)

var supporting = []artifact.Descriptor{
	vae, pulid, redux, sigclip,
	realESRGAN, ultraSharp,
	samVitB, faceYolo, handYolo,
	unionPro, codeformer, gfpgan, naviLora,
}

func builtinBundles(includeSchnell bool) map[string][]artifact.Descriptor {
	all := []artifact.Descriptor{
		t5xxlFP16, clipL,
		devFP8, fillFP8, cannyFP8, depthFP8,
		fillFP16, cannyFP16, depthFP16, schnellFP16, devFP16,
	}
	if includeSchnell {
		all = append(all, schnellFP8)
	}

	all = append(all, supporting...)

	allFP8 := []artifact.Descriptor{t5xxlFP16, clipL, devFP8, fillFP8, cannyFP8, depthFP8}
	if includeSchnell {
		allFP8 = append(allFP8, schnellFP8)
	}

	allFP8 = append(allFP8, supporting...)

	return map[string][]artifact.Descriptor{
		"all":     all,
		"all_fp8": allFP8,
		"small":   {pulid, redux, sigclip},
		"core": {
			t5xxlFP16, clipL, devFP8, vae,
			realESRGAN, ultraSharp,
			samVitB, faceYolo, handYolo,
		},
		"upscale":     {realESRGAN, ultraSharp},
		"adetailer":   {samVitB, faceYolo, handYolo},
		"facerestore": {codeformer, gfpgan},
		"openpose":    {unionPro},
		"flux_fill":   {fillFP8},
		"flux_canny":  {cannyFP8},
		"flux_depth":  {depthFP8},
		"pulid":       {pulid},
		"redux":       {redux},
	}
}
